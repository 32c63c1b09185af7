package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a key-value store with per-entry expiry.
//
// TTL semantics for Set: positive expires after the duration, zero uses the
// backend's default TTL, negative never expires.
type Cache[V any] interface {
	// Get returns ErrNotFound if the key is missing or expired.
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Codec converts values for byte-oriented backends.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec encodes values as JSON.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return data, nil
}

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.Join(ErrDecode, err)
	}
	return v, nil
}

// LoadFunc computes a value on a miss and says how long to keep it.
type LoadFunc[V any] func(ctx context.Context) (V, time.Duration, error)

// Loader reads through a Cache. Concurrent misses for the same key share a
// single call to the load function.
type Loader[V any] struct {
	cache Cache[V]
	group singleflight.Group
}

// NewLoader wraps c.
//
// Example:
//
//	verdicts := cache.NewLoader[string](cache.NewMemory[string](cache.WithMaxEntries(10_000)))
//	subject, err := verdicts.Load(ctx, token, func(ctx context.Context) (string, time.Duration, error) {
//	    return verify(ctx, token)
//	})
func NewLoader[V any](c Cache[V]) *Loader[V] {
	return &Loader[V]{cache: c}
}

type loaded[V any] struct {
	val V
	ttl time.Duration
}

// Load returns the cached value for key, calling fn on a miss.
// Errors from fn are returned and not cached. Failing to store the result
// does not fail the call.
//
// fn is shared by every caller waiting on key, so it runs with ctx's values
// but not its cancellation. Bound it inside fn when it can block.
func (l *Loader[V]) Load(ctx context.Context, key string, fn LoadFunc[V]) (V, error) {
	if v, err := l.cache.Get(ctx, key); err == nil {
		return v, nil
	}

	res, err, _ := l.group.Do(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		val, ttl, err := fn(shared)
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(shared, key, val, ttl)
		return loaded[V]{val: val, ttl: ttl}, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(loaded[V]).val, nil
}

// Forget drops key from the cache.
func (l *Loader[V]) Forget(ctx context.Context, key string) error {
	l.group.Forget(key)
	return l.cache.Delete(ctx, key)
}
