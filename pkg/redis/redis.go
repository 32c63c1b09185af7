package redis

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes a Redis connection. Zero fields take the defaults noted.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string `config:"url"`

	// PoolSize caps pooled connections. Default: 10.
	PoolSize int `config:"pool_size"`

	// DialTimeout bounds establishing a connection. Default: 5s.
	DialTimeout time.Duration `config:"dial_timeout"`

	// IOTimeout bounds each read and write. Default: 3s.
	IOTimeout time.Duration `config:"io_timeout"`

	// RetryAttempts is how many times Open pings before giving up. Default: 3.
	RetryAttempts int `config:"retry_attempts"`

	// RetryInterval is the base backoff between attempts; the n-th wait is n times it. Default: 1s.
	RetryInterval time.Duration `config:"retry_interval"`
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = 3 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return c
}

// options translates c into go-redis options.
func (c Config) options() (*redis.Options, error) {
	if c.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(c.URL, "redis://") && !strings.HasPrefix(c.URL, "rediss://") {
		return nil, ErrFailedToParseURL
	}
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}
	opts.PoolSize = c.PoolSize
	opts.DialTimeout = c.DialTimeout
	opts.ReadTimeout = c.IOTimeout
	opts.WriteTimeout = c.IOTimeout
	return opts, nil
}

// Open connects to Redis, retrying the initial ping with linear backoff.
//
// Example:
//
//	client, err := redis.Open(ctx, os.Getenv("REDIS_URL"))
func Open(ctx context.Context, url string) (redis.UniversalClient, error) {
	return OpenConfig(ctx, Config{URL: url})
}

// OpenConfig is Open with full configuration.
func OpenConfig(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	cfg = cfg.withDefaults()
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := range cfg.RetryAttempts {
		client := redis.NewClient(opts)
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == cfg.RetryAttempts-1 {
			break
		}
		if err := wait(ctx, time.Duration(i+1)*cfg.RetryInterval); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}
	return nil, errors.Join(ErrConnectionFailed, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Healthcheck returns a readiness check that pings client.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return ErrHealthcheckFailed
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Shutdown returns a shutdown hook that closes client.
//
// Example:
//
//	dispatch.Run(svc, settings, dispatch.ShutdownHook(redis.Shutdown(client)))
func Shutdown(client io.Closer) func(context.Context) error {
	return func(context.Context) error {
		return client.Close()
	}
}
