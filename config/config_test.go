package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/shortcode"
	"github.com/c360/formflow/store"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, store.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, store.DefaultBucket, cfg.Storage.Bucket)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"flows-config.yaml"}, cfg.Flows.Paths)
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "formflow.json", `{
		"http": {"addr": ":9000", "read_timeout": "30s"},
		"storage": {"backend": "sqlite", "sqlite_path": "/var/lib/formflow/submissions.db"},
		"session": {"ttl": "7d"},
		"flows": {"paths": ["flows/ubi.yaml", "flows/landing.yaml"]},
		"policies": {
			"locked_after_submit": {"ubi": "success"},
			"short_codes": {"ubi": {"code_length": 8, "creation_point": "submission"}}
		}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	// untouched keys in a merged section keep their defaults
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 20, cfg.HTTP.RateBurst)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "formflow_session", cfg.Session.CookieName)
	assert.Equal(t, store.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, []string{"flows/ubi.yaml", "flows/landing.yaml"}, cfg.Flows.Paths)
	assert.Equal(t, "success", cfg.Policies.LockedAfterSubmit["ubi"])
	assert.Equal(t, 8, cfg.Policies.ShortCodes["ubi"].CodeLength)
	assert.True(t, cfg.Policies.ShortCodes["ubi"].CreateAtSubmission())
}

func TestLoader_Layers(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "base.json", `{
		"http": {"addr": ":8081", "rate_limit": 2, "rate_burst": 4},
		"metrics": {"port": 9100}
	}`)
	prod := writeConfig(t, dir, "production.json", `{
		"http": {"addr": ":443"},
		"session": {"secure": true, "cleanup_interval": "1m"}
	}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(prod)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, ":443", cfg.HTTP.Addr)
	assert.InDelta(t, 2.0, cfg.HTTP.RateLimit, 0.0001)
	assert.Equal(t, 4, cfg.HTTP.RateBurst)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, time.Minute, cfg.Session.CleanupInterval)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("FORMFLOW_HTTP_ADDR", ":7000")
	t.Setenv("FORMFLOW_METRICS_PORT", "9200")
	t.Setenv("FORMFLOW_STORAGE_BACKEND", "kv")
	t.Setenv("FORMFLOW_STORAGE_BUCKET", "forms")
	t.Setenv("FORMFLOW_NATS_URLS", "nats://a:4222, nats://b:4222,")
	t.Setenv("FORMFLOW_NATS_PASSWORD", "hunter2")
	t.Setenv("FORMFLOW_SESSION_TTL", "2d")
	t.Setenv("FORMFLOW_FLOWS_PATHS", "one.yaml,two.yaml")
	t.Setenv("FORMFLOW_FLOWS_LUA_DIR", "conditions")

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 9200, cfg.Metrics.Port)
	assert.Equal(t, store.BackendKV, cfg.Storage.Backend)
	assert.Equal(t, "forms", cfg.Storage.Bucket)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "hunter2", cfg.NATS.Password)
	assert.Equal(t, 48*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"one.yaml", "two.yaml"}, cfg.Flows.Paths)
	assert.Equal(t, "conditions", cfg.Flows.LuaDir)
}

func TestLoader_EnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "FORMFLOW_METRICS_PORT", "ninety"},
		{"bad ttl", "FORMFLOW_SESSION_TTL", "soon"},
		{"oversized value", "FORMFLOW_HTTP_ADDR", strings.Repeat("a", maxEnvVarLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := NewLoader().Load()
			require.Error(t, err)
		})
	}
}

func TestLoader_FileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.json")},
		{"not json extension", writeConfig(t, dir, "formflow.yaml", `{}`)},
		{"malformed json", writeConfig(t, dir, "broken.json", `{"http": {"addr": ":80"}`)},
		{"bad duration", writeConfig(t, dir, "duration.json", `{"session": {"ttl": "forever"}}`)},
		{"too deep", writeConfig(t, dir, "deep.json", strings.Repeat(`{"a":`, maxJSONDepth+1)+"1"+
			strings.Repeat("}", maxJSONDepth+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(tt.path)
			require.Error(t, err)
		})
	}
}

func TestLoader_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "formflow.json", `{"storage": {"backend": "postgres"}}`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err, "validation is off by default")
	assert.Equal(t, "postgres", cfg.Storage.Backend)

	loader.EnableValidation(true)
	_, err = loader.LoadFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"backend case folded", func(c *Config) { c.Storage.Backend = "MEMORY" }, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"kv without urls", func(c *Config) {
			c.Storage.Backend = store.BackendKV
			c.NATS.URLs = nil
		}, "nats.urls"},
		{"kv without bucket", func(c *Config) {
			c.Storage.Backend = store.BackendKV
			c.Storage.Bucket = ""
		}, "storage.bucket"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = store.BackendSQLite }, "storage.sqlite_path"},
		{"sqlite in memory", func(c *Config) {
			c.Storage.Backend = store.BackendSQLite
			c.Storage.SQLitePath = store.MemoryDSN
		}, ""},
		{"no addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"negative timeout", func(c *Config) { c.HTTP.ReadTimeout = -time.Second }, "timeouts"},
		{"rate without burst", func(c *Config) { c.HTTP.RateBurst = 0 }, "rate_burst"},
		{"rate limiting off", func(c *Config) {
			c.HTTP.RateLimit = 0
			c.HTTP.RateBurst = 0
		}, ""},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics.port"},
		{"metrics disabled ignores port", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.Port = 0
		}, ""},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"cookie name", func(c *Config) { c.Session.CookieName = "" }, "cookie_name"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"no flows", func(c *Config) { c.Flows.Paths = nil }, "flows.paths"},
		{"lock without screen", func(c *Config) {
			c.Policies.LockedAfterSubmit = map[string]string{"ubi": ""}
		}, "locked_after_submit"},
		{"disabled without path", func(c *Config) {
			c.Policies.Disabled = map[string]string{"ubi": ""}
		}, "disabled"},
		{"bad short code", func(c *Config) {
			c.Policies.ShortCodes = map[string]shortcode.Config{"ubi": {CodeType: "emoji"}}
		}, "short code policy"},
		{"good short code", func(c *Config) {
			c.Policies.ShortCodes = map[string]shortcode.Config{"ubi": {CodeType: shortcode.Numeric}}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_RedactedAndString(t *testing.T) {
	cfg := Default()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "s3cret"

	redacted := cfg.Redacted()
	assert.Equal(t, "****", redacted.NATS.Password)
	assert.Equal(t, "****", redacted.NATS.Token)
	assert.Equal(t, "hunter2", cfg.NATS.Password, "original untouched")

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, `"cookie_name": "formflow_session"`)
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Policies.Disabled = map[string]string{"ubi": "/closed"}

	clone := cfg.Clone()
	clone.Flows.Paths[0] = "other.yaml"
	clone.Policies.Disabled["ubi"] = "/elsewhere"

	assert.Equal(t, "flows-config.yaml", cfg.Flows.Paths[0])
	assert.Equal(t, "/closed", cfg.Policies.Disabled["ubi"])

	var nilCfg *Config
	assert.NotNil(t, nilCfg.Clone())
}

func TestConfig_SaveToFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.json")

	cfg := Default()
	cfg.HTTP.Addr = ":8443"
	cfg.Policies.LockedAfterSubmit = map[string]string{"ubi": "success"}
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	assert.Error(t, cfg.SaveToFile(filepath.Join(dir, "saved.yaml")))
}

func TestParseDurationWithDays(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"14d", 14 * 24 * time.Hour, false},
		{"xd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDurationWithDays(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
