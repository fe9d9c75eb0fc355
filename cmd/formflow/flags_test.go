package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("FORMFLOW_CONFIG", "")
	t.Setenv("FORMFLOW_LOG_LEVEL", "")

	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.ConfigPaths)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Validate)
}

func TestParseFlags_ConfigLayers(t *testing.T) {
	t.Setenv("FORMFLOW_CONFIG", "from-env.json")

	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"from-env.json"}, cfg.ConfigPaths)

	cfg, err = parseFlags(newFlagSet(), []string{"-config", "base.json", "-c", "prod.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base.json", "prod.json"}, cfg.ConfigPaths, "flags replace the env layer")
}

func TestParseFlags_EnvAndDebug(t *testing.T) {
	t.Setenv("FORMFLOW_LOG_FORMAT", "text")
	t.Setenv("FORMFLOW_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("FORMFLOW_DEBUG", "true")

	cfg, err := parseFlags(newFlagSet(), []string{"--validate"})
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Validate)
}

func TestParseFlags_Unknown(t *testing.T) {
	_, err := parseFlags(newFlagSet(), []string{"--nope"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0600))

	valid := func() *CLIConfig {
		return &CLIConfig{
			ConfigPaths:     []string{existing},
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr string
	}{
		{"valid", func(*CLIConfig) {}, ""},
		{"missing file", func(c *CLIConfig) { c.ConfigPaths = append(c.ConfigPaths, "nope.json") }, "config file not found"},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "loud" }, "invalid log level"},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }, "invalid log format"},
		{"zero timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, "invalid shutdown timeout"},
		{"version skips checks", func(c *CLIConfig) { c.LogLevel = "loud"; c.ShowVersion = true }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "flow", "ubi")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "ubi", entry["flow"])

	buf.Reset()
	newLogger(&buf, "debug", "text").Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
	assert.Contains(t, buf.String(), "source=")
}
