package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/submission"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := NewStore(context.Background(), time.Minute, time.Hour, append(opts, WithClock(clock.Now))...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store, clock
}

func TestStore_SaveLoad(t *testing.T) {
	store, _ := newTestStore(t)

	state := &State{}
	state.SetSubmissionID("ubi", "sub-1")
	require.NoError(t, store.Save("s1", state))

	got, ok := store.Load("s1")
	require.True(t, ok)
	assert.Equal(t, "sub-1", got.SubmissionID("ubi"))

	// Loaded copies are independent of the stored state.
	got.SetSubmissionID("ubi", "changed")
	again, _ := store.Load("s1")
	assert.Equal(t, "sub-1", again.SubmissionID("ubi"))

	_, ok = store.Load("unknown")
	assert.False(t, ok)
	_, ok = store.Load("")
	assert.False(t, ok)
	assert.Error(t, store.Save("", state))
}

func TestStore_Expiry(t *testing.T) {
	store, clock := newTestStore(t)
	require.NoError(t, store.Save("s1", &State{}))
	require.NoError(t, store.Save("s2", &State{}))

	clock.Advance(40 * time.Second)
	_, ok := store.Load("s1")
	require.True(t, ok, "load extends the lifetime")

	clock.Advance(40 * time.Second)
	_, ok = store.Load("s1")
	assert.True(t, ok)
	_, ok = store.Load("s2")
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.removeExpired())
	assert.Equal(t, 0, store.Len())
}

func TestStore_ActiveGauge(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "sessions_active"})
	store, _ := newTestStore(t, WithActiveGauge(gauge))

	require.NoError(t, store.Save("s1", &State{}))
	require.NoError(t, store.Save("s2", &State{}))
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	store.Delete("s1")
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}

func TestStore_ExpiryUpdatesGauge(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "sessions_active"})
	store, clock := newTestStore(t, WithActiveGauge(gauge))

	require.NoError(t, store.Save("s1", &State{}))
	require.NoError(t, store.Save("s2", &State{}))
	clock.Advance(2 * time.Minute)

	_, ok := store.Load("s1")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 1, store.removeExpired())
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
}

func TestStore_CacheMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	store, _ := newTestStore(t, WithMetrics(registry))

	require.NoError(t, store.Save("s1", &State{}))
	store.Load("s1")
	store.Load("s2")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				counts[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, counts["formflow_cache_hits_total"])
	assert.Equal(t, 1.0, counts["formflow_cache_misses_total"])

	_, err = NewStore(context.Background(), time.Minute, time.Minute, WithMetrics(registry))
	assert.Error(t, err, "one session store per registry")
}

func TestState_Pending(t *testing.T) {
	state := &State{}
	state.SetPending(map[string][]string{"firstName": {"Required"}},
		map[string]submission.Value{"firstName": submission.Scalar("")})

	clone := state.Clone()
	errs, form := state.TakePending()
	assert.Equal(t, []string{"Required"}, errs["firstName"])
	assert.Contains(t, form, "firstName")
	assert.Nil(t, state.ErrorMessages)
	assert.Nil(t, state.PendingForm)

	assert.NotNil(t, clone.ErrorMessages, "clone keeps its own copy")
}

func TestState_CloneDeleteStaging(t *testing.T) {
	state := &State{EntryToDelete: &DeleteStaging{
		Flow:    "ubi",
		Subflow: "household",
		Iteration: submission.NewIteration("u1", map[string]submission.Value{
			"firstName": submission.Scalar("Alex"),
		}),
	}}
	clone := state.Clone()
	clone.EntryToDelete.Iteration.Set("firstName", submission.Scalar("Sam"))
	assert.Equal(t, "Alex", state.EntryToDelete.Iteration.GetString("firstName"))
}
