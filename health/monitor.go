package health

import (
	"context"
	"sync"
	"time"
)

// CheckFunc checks one dependency
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Monitor runs registered checks and keeps the last aggregate result
type Monitor struct {
	system  string
	timeout time.Duration

	mu     sync.RWMutex
	checks []check
	last   Status
}

// Option configures a Monitor
type Option func(*Monitor)

// WithTimeout bounds each check. Defaults to 2s.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewMonitor creates a monitor reporting as system
func NewMonitor(system string, opts ...Option) *Monitor {
	m := &Monitor{
		system:  system,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.last = NewHealthy(system, "not checked yet")
	return m
}

// Register adds a named check. Registering a name again replaces it.
func (m *Monitor) Register(name string, fn CheckFunc, critical bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.checks {
		if m.checks[i].name == name {
			m.checks[i] = check{name: name, fn: fn, critical: critical}
			return
		}
	}
	m.checks = append(m.checks, check{name: name, fn: fn, critical: critical})
}

// Names lists registered checks in registration order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checks))
	for i, c := range m.checks {
		names[i] = c.name
	}
	return names
}

// Check runs every check concurrently and returns the aggregate
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	checks := make([]check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	results := make([]Status, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = FromError(c.name, c.fn(cctx), c.critical)
		}()
	}
	wg.Wait()

	status := Aggregate(m.system, results)
	m.mu.Lock()
	m.last = status
	m.mu.Unlock()
	return status
}

// Last returns the result of the most recent Check
func (m *Monitor) Last() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
