package scouter

import (
	"sync"
	"time"
)

type shard struct {
	capacity           int
	mu                 sync.RWMutex
	entries            map[ID]*entry
	metricsRecorder    MetricsRecorder
	evictionPercentage int
}

func newShard(
	capacity int,
	evictionPercentage int,
	metricsRecorder MetricsRecorder,
) *shard {
	return &shard{
		capacity:           capacity,
		mu:                 sync.RWMutex{},
		entries:            make(map[ID]*entry),
		evictionPercentage: evictionPercentage,
		metricsRecorder:    metricsRecorder,
	}
}

func (s *shard) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictExpired evicts all the expired entries in the shard. NOTE: Should be
// called with a lock.
func (s *shard) evictExpired(now time.Time) int {
	var entriesEvicted int
	for id, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, id)
			entriesEvicted++
		}
	}
	return entriesEvicted
}

// forceEvict evicts a certain percentage of the entries in the shard
// based on the expiration time. NOTE: Should be called with a lock.
func (s *shard) forceEvict() {
	if s.metricsRecorder != nil {
		s.metricsRecorder.ForcedEviction()
	}

	expirationTimes := make([]time.Time, 0, len(s.entries))
	for _, e := range s.entries {
		expirationTimes = append(expirationTimes, e.expiresAt)
	}

	cutoff := FindCutoff(expirationTimes, float64(s.evictionPercentage)/100)
	var entriesEvicted int
	for id, e := range s.entries {
		if !e.expiresAt.After(cutoff) {
			delete(s.entries, id)
			entriesEvicted++
		}
	}
	if s.metricsRecorder != nil && entriesEvicted > 0 {
		s.metricsRecorder.EntriesEvicted(entriesEvicted)
	}
}

// get returns a copy of the entry, or nil if it's missing or expired.
// NOTE: Should be called with a read lock.
func (s *shard) get(id ID, now time.Time) *CachedResult {
	e, ok := s.entries[id]
	if !ok || !e.expiresAt.After(now) {
		return nil
	}
	return e.cached()
}

// set writes a result to the shard. Returns true if it triggered an
// eviction. NOTE: Should be called with a lock.
func (s *shard) set(result Result, expiresAt time.Time) bool {
	_, exists := s.entries[result.ID()]
	evict := !exists && len(s.entries) >= s.capacity

	// If the store is configured to not evict any entries, a full shard
	// silently drops new ids.
	if evict && s.evictionPercentage < 1 {
		return false
	}

	if evict {
		s.forceEvict()
	}

	s.entries[result.ID()] = &entry{
		id:        result.ID(),
		result:    result,
		expiresAt: expiresAt,
	}
	return evict
}
