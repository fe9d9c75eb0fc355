package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/gateway"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/navigation"
	"github.com/c360/formflow/plugin"
	"github.com/c360/formflow/session"
	"github.com/c360/formflow/store"
	"github.com/c360/formflow/testutil"
)

const testFlows = `
name: ubi
flow:
  intro:
    nextScreens:
      - name: personalInfo
  personalInfo:
    validation:
      required:
        - firstName
      messages:
        firstName: Make sure to provide a first name.
    nextScreens:
      - name: householdAdd
  householdAdd:
    nextScreens:
      - name: householdMember
  householdMember:
    subflow: household
    nextScreens:
      - name: householdList
  householdList:
    nextScreens:
      - name: done
  householdDeleteConfirmation:
    nextScreens:
      - name: householdList
  done:
    nextScreens: []
subflows:
  household:
    entryScreen: householdAdd
    iterationStartScreen: householdMember
    reviewScreen: householdList
    deleteConfirmationScreen: householdDeleteConfirmation
`

type fixture struct {
	server  *httptest.Server
	client  *http.Client
	store   *store.MemoryStore
	faulty  *testutil.FaultyStore
	metrics *metric.Metrics
}

func newFixture(t *testing.T, mutate func(*gateway.Config)) *fixture {
	t.Helper()

	registry := testutil.MustRegistry(t, testFlows)
	conditions, err := plugin.NewConditions(nil)
	require.NoError(t, err)
	actions, err := plugin.NewActions(nil)
	require.NoError(t, err)

	f := &fixture{
		store:   store.NewMemoryStore(),
		metrics: metric.NewMetricsRegistry().CoreMetrics(),
	}
	f.faulty = testutil.NewFaultyStore(f.store)
	engine, err := navigation.NewEngine(navigation.Deps{
		Flows:      registry,
		Conditions: conditions,
		Actions:    actions,
		Store:      f.store,
	}, navigation.WithMetrics(f.metrics))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sessions, err := session.NewStore(ctx, time.Hour, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = sessions.Close()
	})

	cfg := gateway.DefaultConfig()
	cfg.RateLimit = 0
	cfg.RateBurst = 0
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg, Deps{
		Engine:   engine,
		Sessions: sessions,
		Store:    f.faulty,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)

	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) post(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+path, values)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func requireRedirect(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, want, resp.Header.Get("Location"))
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(gateway.Config{}, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewServer(gateway.DefaultConfig(), Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].([]any)
	require.Len(t, components, 1)
	assert.Equal(t, "storage", components[0].(map[string]any)["component"])

	f.faulty.FailPing(errors.WrapTransient(errors.ErrStorageUnavailable, "KVStore", "Ping", "bucket status"))
	resp = f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "unhealthy", body["status"])
	storage := body["components"].([]any)[0].(map[string]any)
	assert.Equal(t, "unhealthy", storage["status"])
	assert.Contains(t, storage["message"], "storage unavailable")
}

func TestGetScreen_RendersViewAndStartsSession(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/flow/ubi/intro")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "formflow_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	body := decode(t, resp)
	assert.Equal(t, "ubi/intro", body["view"])
	model := body["model"].(map[string]any)
	assert.Equal(t, "/flow/ubi/intro", model["formAction"])

	assert.Equal(t, 1.0, promtest.ToFloat64(
		f.metrics.RequestsTotal.WithLabelValues("/flow/{flow}/{screen}", http.MethodGet, "2xx")))
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestGetOrGenerateRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	id := getOrGenerateRequestID(req)
	assert.Len(t, id, 16)
	assert.NotEqual(t, id, getOrGenerateRequestID(req))

	req.Header.Set(RequestIDHeader, "550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", getOrGenerateRequestID(req))
}

func TestPostScreen_ValidationRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/flow/ubi/personalInfo", url.Values{"lastName": {"Doe"}})
	requireRedirect(t, resp, "/flow/ubi/personalInfo")

	resp = f.get(t, "/flow/ubi/personalInfo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	model := decode(t, resp)["model"].(map[string]any)
	errs := model["errorMessages"].(map[string]any)
	assert.Equal(t, []any{"Make sure to provide a first name."}, errs["firstName"])

	resp = f.post(t, "/flow/ubi/personalInfo", url.Values{"firstName": {"Ada"}})
	requireRedirect(t, resp, "/flow/ubi/personalInfo/navigation")

	resp = f.get(t, "/flow/ubi/personalInfo/navigation")
	requireRedirect(t, resp, "/flow/ubi/householdAdd")
	assert.Equal(t, 1, f.store.Len())
}

func TestSubmit_FinalizesSubmission(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/flow/ubi/personalInfo/submit", url.Values{"firstName": {"Ada"}})
	requireRedirect(t, resp, "/flow/ubi/personalInfo/navigation")

	resp = f.get(t, "/flow/ubi/personalInfo")
	model := decode(t, resp)["model"].(map[string]any)
	sub := model["submission"].(map[string]any)
	assert.NotNil(t, sub["submitted_at"])
}

func TestErrors_MappedToStatus(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/flow/nope/intro")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "flow: nope")

	resp = f.get(t, "/flow/ubi/intro/navigation")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.post(t, "/flow/ubi/householdMember/it-1", url.Values{"firstName": {"Ada"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Your session has expired. Please start again.", decode(t, resp)["error"])

	resp = f.get(t, "/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubflow_CreateEditDelete(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/flow/ubi/householdMember/new", url.Values{"firstName": {"Grace"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/flow/ubi/householdMember/navigation", loc.Path)
	uuid := loc.Query().Get("uuid")
	require.NotEmpty(t, uuid)

	resp = f.get(t, loc.RequestURI())
	requireRedirect(t, resp, "/flow/ubi/householdList")

	resp = f.get(t, fmt.Sprintf("/flow/ubi/householdMember/%s/edit", uuid))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	model := decode(t, resp)["model"].(map[string]any)
	assert.Equal(t, "/flow/ubi/householdMember/"+uuid, model["formAction"])
	assert.Equal(t, "Grace", model["fieldData"].(map[string]any)["firstName"])

	resp = f.post(t, fmt.Sprintf("/flow/ubi/householdMember/%s/edit", uuid), url.Values{"firstName": {"Grace H"}})
	requireRedirect(t, resp, "/flow/ubi/householdMember/navigation?uuid="+uuid)

	resp = f.get(t, fmt.Sprintf("/flow/ubi/household/%s/deleteConfirmation", uuid))
	requireRedirect(t, resp, "/flow/ubi/householdDeleteConfirmation?uuid="+uuid)

	resp = f.post(t, fmt.Sprintf("/flow/ubi/household/%s/delete", uuid), nil)
	requireRedirect(t, resp, "/flow/ubi/householdAdd")

	resp = f.get(t, "/flow/ubi/householdDeleteConfirmation?uuid="+uuid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	model = decode(t, resp)["model"].(map[string]any)
	assert.Equal(t, true, model["noEntryToDelete"])
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *gateway.Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	resp := f.post(t, "/flow/ubi/intro", url.Values{})
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp = f.post(t, "/flow/ubi/intro", url.Values{})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// reads are never limited
	resp = f.get(t, "/flow/ubi/intro")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPost_BodyTooLarge(t *testing.T) {
	f := newFixture(t, func(c *gateway.Config) { c.MaxRequestSize = 64 })

	resp := f.post(t, "/flow/ubi/personalInfo", url.Values{"firstName": {strings.Repeat("a", 200)}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)
	assert.Zero(t, f.store.Len())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", errors.NewNotFound("ubi", "x", "Screen not found."), http.StatusNotFound,
			"There was a problem with the request (flow: ubi, screen: x): Screen not found."},
		{"session expired", errors.WrapInvalid(errors.ErrSessionExpired, "Engine", "requireSubmission", "load"),
			http.StatusBadRequest, "Your session has expired. Please start again."},
		{"invalid", errors.Invalid("Engine", "Post", "bad"), http.StatusBadRequest, "invalid request"},
		{"conflict", errors.WrapTransient(errors.ErrConflict, "KVStore", "Save", "update"),
			http.StatusConflict, "This form was changed in another window. Please try again."},
		{"config", errors.NewConfigError("ubi", "a", "cycle"), http.StatusInternalServerError,
			"internal server error"},
		{"config wrapping not found", &errors.ConfigError{Flow: "ubi", Message: "dangling",
			Err: errors.NewNotFound("ubi", "", "Subflow not found.")}, http.StatusInternalServerError,
			"internal server error"},
		{"storage", errors.WrapTransient(errors.ErrStorageUnavailable, "SQLiteStore", "Get", "query"),
			http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), http.StatusGatewayTimeout,
			"request timeout"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := mapErrorToHTTPStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, sanitizeError(tt.err, status))
		})
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
	assert.Equal(t, 2, l.len())

	now = now.Add(limiterIdle + time.Minute)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Equal(t, 1, l.len())
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/flow/ubi/intro?utm=mail&utm=web&ref=", nil)
	assert.Equal(t, map[string]string{"utm": "mail", "ref": ""}, queryParams(req))

	req = httptest.NewRequest(http.MethodGet, "/flow/ubi/intro", nil)
	assert.Nil(t, queryParams(req))
}
