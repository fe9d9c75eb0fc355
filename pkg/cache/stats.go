package cache

import "sync/atomic"

// Statistics counts cache operations. It is always collected.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
}

func (s *Statistics) hit()             { s.hits.Add(1) }
func (s *Statistics) miss()            { s.misses.Add(1) }
func (s *Statistics) set()             { s.sets.Add(1) }
func (s *Statistics) delete()          { s.deletes.Add(1) }
func (s *Statistics) eviction()        { s.evictions.Add(1) }
func (s *Statistics) updateSize(n int) { s.size.Store(int64(n)) }

// Hits returns the number of successful lookups
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of lookups that found nothing or an expired entry
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of writes
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Deletes returns the number of explicit deletions of existing keys
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions returns the number of entries dropped because they expired
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// Size returns the entry count at the last update
func (s *Statistics) Size() int64 { return s.size.Load() }

// HitRatio returns hits / (hits + misses), or 0 before any lookup
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
