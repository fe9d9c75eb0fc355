package cache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/testutil"
)

func newTestTTL(t *testing.T, opts ...Option[string]) (*TTL[string], *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c, err := NewTTL(context.Background(), time.Minute, time.Hour, append(opts, WithClock[string](clock.Now))...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c, clock
}

func TestNewTTL_Validation(t *testing.T) {
	tests := []struct {
		name     string
		ttl      time.Duration
		interval time.Duration
	}{
		{"zero ttl", 0, time.Minute},
		{"negative interval", time.Minute, -time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTTL[string](context.Background(), tt.ttl, tt.interval)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestTTL_SetGetDelete(t *testing.T) {
	c, _ := newTestTTL(t)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = c.Get("b")
	assert.False(t, ok)

	deleted, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(2), stats.Sets())
	assert.Equal(t, int64(1), stats.Deletes())
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.001)
}

func TestTTL_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		sliding bool
		want    bool
	}{
		{"fixed lifetime expires", false, false},
		{"sliding lifetime is extended by reads", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option[string]
			if tt.sliding {
				opts = append(opts, WithSlidingExpiry[string]())
			}
			c, clock := newTestTTL(t, opts...)
			_, err := c.Set("a", "1")
			require.NoError(t, err)

			clock.Advance(40 * time.Second)
			_, ok := c.Get("a")
			require.True(t, ok)

			clock.Advance(40 * time.Second)
			_, ok = c.Get("a")
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTTL_RemoveExpiredCallsBack(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	c, clock := newTestTTL(t, WithEvictionCallback(func(key, _ string) {
		mu.Lock()
		evicted = append(evicted, key)
		mu.Unlock()
	}))

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Set(k, k)
		require.NoError(t, err)
	}
	clock.Advance(30 * time.Second)
	_, err := c.Set("c", "fresh")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, c.Keys())

	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, c.RemoveExpired())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, int64(2), c.Stats().Evictions())

	mu.Lock()
	sort.Strings(evicted)
	assert.Equal(t, []string{"a", "b"}, evicted)
	mu.Unlock()
}

func TestTTL_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, clock := newTestTTL(t, WithMetrics[string](registry, "sessions"))

	_, err := c.Set("a", "1")
	require.NoError(t, err)
	_, err = c.Set("b", "2")
	require.NoError(t, err)
	c.Get("a")
	c.Get("missing")
	clock.Advance(2 * time.Minute)
	c.RemoveExpired()

	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.metrics.misses))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.metrics.sets))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.metrics.evictions))
	assert.Equal(t, 0.0, promtest.ToFloat64(c.metrics.size))

	_, err = NewTTL[string](context.Background(), time.Minute, time.Hour, WithMetrics[string](registry, "sessions"))
	assert.Error(t, err, "duplicate registration")
}

func TestTTL_CloseStopsCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewTTL[int](ctx, time.Minute, time.Millisecond)
	require.NoError(t, err)
	cancel()
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
