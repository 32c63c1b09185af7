package internal

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Default settings values.
const (
	DefaultPort            = 1984
	DefaultRoot            = "/"
	DefaultShutdownTimeout = 30 * time.Second
)

// Settings configures a Service. They are read once when the service starts.
type Settings struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int `config:"port"`

	// BindAddress is the interface to bind. Empty binds all interfaces.
	BindAddress string `config:"bind_address"`

	// Root prefixes every published path.
	Root string `config:"root"`

	// DefaultHeaders are written on every response unless overridden.
	DefaultHeaders map[string]string `config:"default_headers"`

	// ConnectionTimeout bounds request reads and response writes. It is also
	// the age at which the sweeper closes a session no handler is executing
	// for, such as one parked on a gate or left open by a returned handler.
	// Handlers still running are never swept. Zero disables both.
	ConnectionTimeout time.Duration `config:"connection_timeout"`

	// MaxConnections caps concurrently served connections. Zero is unbounded.
	MaxConnections int64 `config:"max_connections"`

	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64 `config:"max_body_bytes"`

	// CaseInsensitivePaths folds case before route lookups.
	CaseInsensitivePaths bool `config:"case_insensitive_paths"`

	// SweepSchedule is a cron spec for closing stale sessions,
	// e.g. "@every 30s". Empty disables the sweeper.
	SweepSchedule string `config:"sweep_schedule"`

	// ShutdownTimeout bounds shutdown hooks run by Run.
	ShutdownTimeout time.Duration `config:"shutdown_timeout"`
}

// DefaultSettings returns settings for port 1984 at root "/".
func DefaultSettings() Settings {
	return Settings{
		Port:            DefaultPort,
		Root:            DefaultRoot,
		DefaultHeaders:  map[string]string{},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Address returns the listen address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.Port))
}

// Validate checks values that cannot be normalized.
func (s Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("dispatch: invalid port %d", s.Port)
	}
	if s.ConnectionTimeout < 0 {
		return fmt.Errorf("dispatch: negative connection timeout %s", s.ConnectionTimeout)
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("dispatch: negative max connections %d", s.MaxConnections)
	}
	if s.SweepSchedule != "" && s.ConnectionTimeout == 0 {
		return fmt.Errorf("dispatch: sweep schedule %q requires a connection timeout", s.SweepSchedule)
	}
	return nil
}

// SettingsSource contributes values to the settings store.
type SettingsSource interface {
	Apply(store map[string]any) error
}

// SettingsSourceFunc adapts a function to SettingsSource.
type SettingsSourceFunc func(store map[string]any) error

func (f SettingsSourceFunc) Apply(store map[string]any) error {
	return f(store)
}

// Values is a literal settings source.
//
// Example:
//
//	dispatch.LoadSettings(dispatch.Values{"port": 8080, "default_headers": map[string]any{"Server": "dispatch"}})
type Values map[string]any

// Apply merges the values into store.
func (v Values) Apply(store map[string]any) error {
	merge(store, v)
	return nil
}

// YAML reads settings from a YAML document.
func YAML(r io.Reader) SettingsSource {
	return SettingsSourceFunc(func(store map[string]any) error {
		var doc map[string]any
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("dispatch: decode yaml settings: %w", err)
		}
		merge(store, doc)
		return nil
	})
}

// YAMLFile reads settings from the YAML file at path.
func YAMLFile(path string) SettingsSource {
	return SettingsSourceFunc(func(store map[string]any) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("dispatch: open settings: %w", err)
		}
		defer f.Close()
		return YAML(f).Apply(store)
	})
}

// Env reads settings from environment variables named prefix_KEY, for
// example DISPATCH_PORT. Default headers use prefix_HEADER_<Name>.
func Env(prefix string) SettingsSource {
	prefix = strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_"
	headerPrefix := prefix + "HEADER_"
	return SettingsSourceFunc(func(store map[string]any) error {
		for _, kv := range os.Environ() {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(name, prefix) {
				continue
			}
			if strings.HasPrefix(name, headerPrefix) {
				header := strings.ReplaceAll(strings.TrimPrefix(name, headerPrefix), "_", "-")
				merge(store, map[string]any{"default_headers": map[string]any{header: value}})
				continue
			}
			store[strings.ToLower(strings.TrimPrefix(name, prefix))] = value
		}
		return nil
	})
}

// LoadSettings applies sources over DefaultSettings in order. Later sources
// override earlier ones.
func LoadSettings(srcs ...SettingsSource) (Settings, error) {
	store := make(map[string]any)
	for _, src := range srcs {
		if src == nil {
			continue
		}
		if err := src.Apply(store); err != nil {
			return Settings{}, err
		}
	}

	settings := DefaultSettings()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		WeaklyTypedInput: true,
		Result:           &settings,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(store); err != nil {
		return Settings{}, fmt.Errorf("dispatch: decode settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// merge copies src into dst, merging nested maps key by key.
func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := asMap(v)
		if !ok {
			dst[k] = v
			continue
		}
		existing, ok := asMap(dst[k])
		if !ok {
			existing = make(map[string]any)
		}
		merge(existing, sub)
		dst[k] = existing
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	}
	return nil, false
}
