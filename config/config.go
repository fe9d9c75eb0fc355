package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/shortcode"
	"github.com/c360/formflow/store"
)

// Config represents the complete server configuration
type Config struct {
	Version  string         `json:"version,omitempty"`
	HTTP     HTTPConfig     `json:"http"`
	Metrics  MetricsConfig  `json:"metrics"`
	Storage  StorageConfig  `json:"storage"`
	NATS     NATSConfig     `json:"nats"`
	Session  SessionConfig  `json:"session"`
	Flows    FlowsConfig    `json:"flows"`
	Policies PoliciesConfig `json:"policies"`
}

// HTTPConfig configures the form server
type HTTPConfig struct {
	Addr         string        `json:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`

	// RateLimit is the sustained POST rate per client in requests per
	// second; 0 disables limiting
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// StorageConfig selects the submission store
type StorageConfig struct {
	Backend    string `json:"backend"`
	Bucket     string `json:"bucket,omitempty"`
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// SessionConfig configures browser sessions
type SessionConfig struct {
	CookieName      string        `json:"cookie_name"`
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	Secure          bool          `json:"secure"`
}

// FlowsConfig lists the flow definitions to load
type FlowsConfig struct {
	Paths  []string `json:"paths"`
	LuaDir string   `json:"lua_dir,omitempty"`
}

// PoliciesConfig holds per-flow policies, keyed by flow name
type PoliciesConfig struct {
	LockedAfterSubmit map[string]string           `json:"locked_after_submit,omitempty"`
	Disabled          map[string]string           `json:"disabled,omitempty"`
	ShortCodes        map[string]shortcode.Config `json:"short_codes,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    5,
			RateBurst:    20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Storage: StorageConfig{
			Backend: store.BackendMemory,
			Bucket:  store.DefaultBucket,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Session: SessionConfig{
			CookieName:      "formflow_session",
			TTL:             12 * time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Flows: FlowsConfig{
			Paths: []string{"flows-config.yaml"},
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	switch c.Storage.Backend {
	case store.BackendMemory:
	case store.BackendKV:
		if len(c.NATS.URLs) == 0 {
			return invalid("nats.urls is required for the kv storage backend")
		}
		if c.Storage.Bucket == "" {
			return invalid("storage.bucket is required for the kv storage backend")
		}
	case store.BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return invalid("storage.sqlite_path is required for the sqlite storage backend")
		}
	default:
		return invalid(fmt.Sprintf("storage.backend %q must be one of memory, kv, sqlite", c.Storage.Backend))
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		return invalid("http timeouts cannot be negative")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return invalid("http rate limit cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst == 0 {
		return invalid("http.rate_burst must be positive when rate_limit is set")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	if c.Session.CookieName == "" {
		return invalid("session.cookie_name is required")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl must be positive")
	}
	if c.Session.CleanupInterval < 0 {
		return invalid("session.cleanup_interval cannot be negative")
	}

	if len(c.Flows.Paths) == 0 {
		return invalid("flows.paths must list at least one flow definition file")
	}

	return c.Policies.validate()
}

func (p PoliciesConfig) validate() error {
	for flow, screen := range p.LockedAfterSubmit {
		if flow == "" || screen == "" {
			return invalid("policies.locked_after_submit entries need a flow and a screen")
		}
	}
	for flow, path := range p.Disabled {
		if flow == "" || path == "" {
			return invalid("policies.disabled entries need a flow and a redirect path")
		}
	}
	for flow, sc := range p.ShortCodes {
		if flow == "" {
			return invalid("policies.short_codes entries need a flow")
		}
		if err := sc.Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("short code policy for flow %s", flow))
		}
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "config check")
}

// Redacted returns a copy with credentials masked
func (c *Config) Redacted() *Config {
	out := c.Clone()
	for _, s := range []*string{&out.NATS.Password, &out.NATS.Token} {
		if *s != "" {
			*s = "****"
		}
	}
	return out
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
