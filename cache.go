package scouter

import (
	"context"
	"encoding/binary"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MemoryStore is a sharded, in-process Store.
type MemoryStore struct {
	ttl             time.Duration
	shards          []*shard
	clock           Clock
	metricsRecorder MetricsRecorder
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithStoreClock changes the clock that the store stamps expiries with.
func WithStoreClock(clock Clock) StoreOption {
	return func(m *MemoryStore) {
		m.clock = clock
	}
}

// WithStoreMetrics makes the store report evictions.
func WithStoreMetrics(recorder MetricsRecorder) StoreOption {
	return func(m *MemoryStore) {
		m.metricsRecorder = recorder
	}
}

// NewMemoryStore creates a MemoryStore.
//
// `capacity` defines the maximum number of entries that the store can hold.
// `numShards` Is used to set the number of shards. Has to be greater than 0.
// `ttl` is the cache interval added to the current time on every update.
// `evictionPercentage` Percentage of a full shard to evict to make room for a new id.
func NewMemoryStore(capacity, numShards int, ttl time.Duration, evictionPercentage int, opts ...StoreOption) *MemoryStore {
	validateStoreArgs(capacity, numShards, ttl, evictionPercentage)

	//nolint: exhaustruct // The options are going to set the remaining fields.
	store := &MemoryStore{
		ttl:   ttl,
		clock: NewClock(),
	}

	for _, opt := range opts {
		opt(store)
	}

	// We create the shards after we've applied the options to ensure that the correct values are used.
	shardSize := capacity / numShards
	shards := make([]*shard, numShards)
	for i := 0; i < numShards; i++ {
		shards[i] = newShard(shardSize, evictionPercentage, store.metricsRecorder)
	}
	store.shards = shards

	return store
}

// Size returns the number of entries in the store, expired or not.
func (m *MemoryStore) Size() int {
	var sum int
	for _, shard := range m.shards {
		sum += shard.size()
	}
	return sum
}

// Get returns one entry per id, nil for ids that are missing or expired.
func (m *MemoryStore) Get(_ context.Context, ids []ID) (map[ID]*CachedResult, error) {
	unlock := m.lockShards(m.shardIndexes(ids), true)
	defer unlock()

	now := m.clock.Now()
	results := make(map[ID]*CachedResult, len(ids))
	for _, id := range ids {
		results[id] = m.getShard(id).get(id, now)
	}
	return results, nil
}

// Update writes every result with an expiry of now plus the ttl.
func (m *MemoryStore) Update(_ context.Context, results []Result) error {
	ids := make([]ID, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID())
	}

	unlock := m.lockShards(m.shardIndexes(ids), false)
	defer unlock()

	expiresAt := m.clock.Now().Add(m.ttl)
	for _, r := range results {
		m.getShard(r.ID()).set(r, expiresAt)
	}
	return nil
}

// fill writes entries with the expiry they already have.
func (m *MemoryStore) fill(entries []CachedResult) {
	ids := make([]ID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Result.ID())
	}

	unlock := m.lockShards(m.shardIndexes(ids), false)
	defer unlock()

	for _, e := range entries {
		m.getShard(e.Result.ID()).set(e.Result, e.Expiry)
	}
}

// SweepExpired deletes the entries that have expired and returns how many there were.
func (m *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	unlock := m.lockShards(m.allShardIndexes(), false)
	defer unlock()

	now := m.clock.Now()
	var evicted int
	for _, shard := range m.shards {
		evicted += shard.evictExpired(now)
	}
	if m.metricsRecorder != nil && evicted > 0 {
		m.metricsRecorder.EntriesEvicted(evicted)
	}
	return evicted, nil
}

// Dump returns a copy of every entry, expired or not.
func (m *MemoryStore) Dump(_ context.Context) ([]CachedResult, error) {
	unlock := m.lockShards(m.allShardIndexes(), true)
	defer unlock()

	dump := make([]CachedResult, 0)
	for _, shard := range m.shards {
		for _, e := range shard.entries {
			dump = append(dump, *e.cached())
		}
	}
	return dump, nil
}

func (m *MemoryStore) shardIndex(id ID) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return int(xxhash.Sum64(buf[:]) % uint64(len(m.shards)))
}

// getShard returns the shard that should be used for the specified id.
func (m *MemoryStore) getShard(id ID) *shard {
	return m.shards[m.shardIndex(id)]
}

func (m *MemoryStore) shardIndexes(ids []ID) []int {
	indexes := make([]int, 0, len(ids))
	for _, id := range ids {
		indexes = append(indexes, m.shardIndex(id))
	}
	slices.Sort(indexes)
	return slices.Compact(indexes)
}

func (m *MemoryStore) allShardIndexes() []int {
	indexes := make([]int, len(m.shards))
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}

// lockShards locks the shards in ascending order, which keeps two batched
// calls from deadlocking on each other. The indexes must be sorted.
func (m *MemoryStore) lockShards(indexes []int, read bool) func() {
	for _, i := range indexes {
		if read {
			m.shards[i].mu.RLock()
		} else {
			m.shards[i].mu.Lock()
		}
	}
	return func() {
		for _, i := range indexes {
			if read {
				m.shards[i].mu.RUnlock()
			} else {
				m.shards[i].mu.Unlock()
			}
		}
	}
}

// validateStoreArgs is a helper function that panics if the arguments are invalid.
func validateStoreArgs(capacity, numShards int, ttl time.Duration, evictionPercentage int) {
	if capacity <= 0 {
		panic("capacity must be greater than 0")
	}

	if numShards <= 0 {
		panic("numShards must be greater than 0")
	}

	if numShards > capacity {
		panic("numShards must be less than or equal to capacity")
	}

	if ttl <= 0 {
		panic("ttl must be greater than 0")
	}

	if evictionPercentage < 0 || evictionPercentage > 100 {
		panic("evictionPercentage must be between 0 and 100")
	}
}
