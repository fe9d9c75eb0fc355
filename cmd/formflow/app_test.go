package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/config"
	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/store"
)

const testFlows = "../../flowconfig/testdata/flows.yaml"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Flows.Paths = []string{testFlows}
	cfg.Metrics.Enabled = false
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_MemoryBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, testConfig(t), discardLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.close(context.Background())) }()

	assert.Nil(t, a.nats)
	assert.Nil(t, a.metricsServer)
	assert.IsType(t, &store.MemoryStore{}, a.store)

	srv := httptest.NewServer(a.httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/flow/ubi/howThisWorks")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewApp_LuaConditionsDriveNavigation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	cfg.Flows.LuaDir = "../../configs/conditions"
	a, err := newApp(ctx, cfg, discardLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.close(context.Background())) }()

	srv := httptest.NewServer(a.httpServer.Handler)
	defer srv.Close()

	tests := []struct {
		livesWithOthers string
		want            string
	}{
		{"yes", "/flow/ubi/householdList"},
		{"no", "/flow/ubi/incomeIntro"},
	}
	for _, tt := range tests {
		t.Run(tt.livesWithOthers, func(t *testing.T) {
			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			client := &http.Client{
				Jar: jar,
				CheckRedirect: func(*http.Request, []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}

			resp, err := client.PostForm(srv.URL+"/flow/ubi/personalInfo", url.Values{
				"firstName":       {"Ada"},
				"livesWithOthers": {tt.livesWithOthers},
			})
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusFound, resp.StatusCode)

			resp, err = client.Get(srv.URL + resp.Header.Get("Location"))
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Location"))
		})
	}
}

func TestNewApp_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = store.BackendSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "forms.db")
	cfg.Metrics.Enabled = true

	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.close(context.Background())) }()

	assert.IsType(t, &store.SQLiteStore{}, a.store)
	assert.NotNil(t, a.metricsServer)
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("missing flows", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Flows.Paths = []string{"does-not-exist.yaml"}
		_, err := newApp(context.Background(), cfg, discardLogger())
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = "postgres"
		_, err := newApp(context.Background(), cfg, discardLogger())
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a, err := newApp(ctx, testConfig(t), discardLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.run(ctx, 5*time.Second) }()
	cancel()

	assert.NoError(t, <-done)
}
