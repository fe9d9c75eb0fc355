package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/pkg/cache"
)

// Defaults
const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Store is an in-memory, TTL-bounded session store. Each Load or Save
// extends the session's lifetime by the TTL. Expired sessions are removed
// lazily on access and by a background sweep.
type Store struct {
	ttl    time.Duration
	cache  *cache.TTL[*State]
	active prometheus.Gauge
}

type storeOptions struct {
	active   prometheus.Gauge
	now      func() time.Time
	registry *metric.MetricsRegistry
}

// Option configures a Store
type Option func(*storeOptions)

// WithActiveGauge reports the number of live sessions through g
func WithActiveGauge(g prometheus.Gauge) Option {
	return func(o *storeOptions) { o.active = g }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// WithMetrics exports hit, miss and eviction counts of the session cache
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *storeOptions) { o.registry = registry }
}

// NewStore creates a Store and starts its cleanup goroutine, which stops
// when ctx is done or Close is called.
func NewStore(ctx context.Context, ttl, cleanupInterval time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	o := &storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{ttl: ttl, active: o.active}
	c, err := cache.NewTTL(ctx, ttl, cleanupInterval,
		cache.WithSlidingExpiry[*State](),
		cache.WithClock[*State](o.now),
		cache.WithMetrics[*State](o.registry, "sessions"),
		cache.WithEvictionCallback(func(string, *State) { s.updateGauge() }),
	)
	if err != nil {
		return nil, errors.Wrap(err, "SessionStore", "NewStore", "create session cache")
	}
	s.cache = c
	return s, nil
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.NewString()
}

// TTL returns the session lifetime
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Load returns a copy of the session state and whether the session exists
func (s *Store) Load(id string) (*State, bool) {
	if id == "" {
		return nil, false
	}
	state, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Save stores a copy of state under id
func (s *Store) Save(id string, state *State) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "SessionStore", "Save", "session id validation")
	}
	if _, err := s.cache.Set(id, state.Clone()); err != nil {
		return errors.Wrap(err, "SessionStore", "Save", "store session")
	}
	s.updateGauge()
	return nil
}

// Delete removes a session
func (s *Store) Delete(id string) {
	if id == "" {
		return
	}
	_, _ = s.cache.Delete(id)
}

// Len returns the number of stored sessions, expired ones included until
// the next sweep
func (s *Store) Len() int {
	return s.cache.Size()
}

// Close stops the cleanup goroutine
func (s *Store) Close() error {
	return s.cache.Close()
}

func (s *Store) removeExpired() int {
	return s.cache.RemoveExpired()
}

func (s *Store) updateGauge() {
	if s.active != nil {
		s.active.Set(float64(s.cache.Size()))
	}
}
