package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/formflow/errors"
)

type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTL is a thread-safe cache whose entries expire after a fixed lifetime
type TTL[V any] struct {
	mu              sync.RWMutex
	ttl             time.Duration
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]
	opts            *options[V]
	stats           *Statistics
	metrics         *cacheMetrics

	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache and starts its cleanup goroutine. It fails
// only when metrics registration does.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, opts ...Option[V]) (*TTL[V], error) {
	if ttl <= 0 {
		return nil, errors.Invalid("cache", "NewTTL", "ttl must be positive")
	}
	if cleanupInterval <= 0 {
		return nil, errors.Invalid("cache", "NewTTL", "cleanup interval must be positive")
	}
	o := applyOptions(opts)

	var metrics *cacheMetrics
	if o.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTL[V]{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		opts:            o,
		stats:           &Statistics{},
		metrics:         metrics,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}
	go c.cleanup(ctx)
	return c, nil
}

// Get returns the value stored under key. An expired entry is removed and
// reported as missing.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	now := c.opts.now()

	c.mu.Lock()
	entry, ok := c.items[key]
	if ok && entry.isExpired(now) {
		delete(c.items, key)
		size := len(c.items)
		c.mu.Unlock()

		c.evicted([]*ttlEntry[V]{entry}, size)
		c.recordMiss()
		return zero, false
	}
	if !ok {
		c.mu.Unlock()
		c.recordMiss()
		return zero, false
	}
	if c.opts.sliding {
		entry.expiresAt = now.Add(c.ttl)
	}
	value := entry.value
	c.mu.Unlock()

	c.stats.hit()
	c.metrics.recordHit()
	return value, true
}

// Set stores value under key with a fresh lifetime. It reports whether the
// key was new.
func (c *TTL[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	expiresAt := c.opts.now().Add(c.ttl)

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &ttlEntry[V]{key: key, value: value, expiresAt: expiresAt}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.set()
	c.stats.updateSize(size)
	c.metrics.recordSet()
	c.metrics.updateSize(size)
	return !exists, nil
}

// Delete removes key and reports whether it was present
func (c *TTL[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	if c.opts.evictCallback != nil {
		c.opts.evictCallback(key, entry.value)
	}
	c.stats.delete()
	c.stats.updateSize(size)
	c.metrics.recordDelete()
	c.metrics.updateSize(size)
	return true, nil
}

// Size returns the number of entries, expired ones included until they are
// swept
func (c *TTL[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the keys of unexpired entries
func (c *TTL[V]) Keys() []string {
	now := c.opts.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if !entry.isExpired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns the cache statistics
func (c *TTL[V]) Stats() *Statistics {
	return c.stats
}

// RemoveExpired drops every expired entry and returns how many were removed
func (c *TTL[V]) RemoveExpired() int {
	now := c.opts.now()
	var expired []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.isExpired(now) {
			expired = append(expired, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) > 0 {
		c.evicted(expired, size)
	}
	return len(expired)
}

// Close stops the cleanup goroutine
func (c *TTL[V]) Close() error {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *TTL[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

// evicted must be called without mu held
func (c *TTL[V]) evicted(entries []*ttlEntry[V], size int) {
	if c.opts.evictCallback != nil {
		for _, entry := range entries {
			c.opts.evictCallback(entry.key, entry.value)
		}
	}
	for range entries {
		c.stats.eviction()
	}
	c.stats.updateSize(size)
	c.metrics.recordEvictions(len(entries))
	c.metrics.updateSize(size)
}

func (c *TTL[V]) recordMiss() {
	c.stats.miss()
	c.metrics.recordMiss()
}
