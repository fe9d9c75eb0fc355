package gateway

import (
	"fmt"
	"time"

	"github.com/c360/formflow/errors"
)

// Config holds the request handling settings of a form gateway
type Config struct {
	// CookieName names the session cookie
	CookieName string `json:"cookie_name"`

	// CookieSecure marks the session cookie Secure
	CookieSecure bool `json:"cookie_secure"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty"`

	// RateLimit is the sustained POST rate per client address in requests
	// per second; 0 disables limiting
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`

	// RequestTimeout bounds each engine call (default: 10s)
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
}

// Validate ensures the gateway configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.CookieName == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"cookie_name cannot be empty")
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}
	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate limit cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("rate_burst must be positive when rate_limit is %g", c.RateLimit))
	}

	if c.RequestTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"request_timeout cannot be negative")
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		CookieName:     "formflow_session",
		MaxRequestSize: 1024 * 1024,
		RateLimit:      5,
		RateBurst:      20,
		RequestTimeout: 10 * time.Second,
	}
}
