// Package cache provides a generic, thread-safe TTL cache with built-in
// statistics and optional Prometheus metrics.
//
// Entries expire a fixed time after they were last written, or, with
// WithSlidingExpiry, after they were last read or written. Expired entries
// are dropped on access and by a background sweep that runs until the
// context passed to NewTTL is done or Close is called.
package cache

import (
	"time"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/metric"
)

// EvictCallback is called when an entry expires or is deleted. It runs
// outside the cache lock.
type EvictCallback[V any] func(key string, value V)

// Option configures a cache
type Option[V any] func(*options[V])

type options[V any] struct {
	now           func() time.Time
	sliding       bool
	evictCallback EvictCallback[V]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics exports the cache statistics as Prometheus metrics labelled
// with prefix. A nil registry or empty prefix is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(o *options[V]) {
		if registry != nil && prefix != "" {
			o.metricsReg = registry
			o.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets the function called for every removed entry
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *options[V]) { o.evictCallback = fn }
}

// WithSlidingExpiry makes every successful Get extend the entry's lifetime
func WithSlidingExpiry[V any]() Option[V] {
	return func(o *options[V]) { o.sliding = true }
}

// WithClock replaces time.Now
func WithClock[V any](now func() time.Time) Option[V] {
	return func(o *options[V]) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions[V any](opts []Option[V]) *options[V] {
	o := &options[V]{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
