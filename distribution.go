package scouter

import (
	"context"

	"github.com/sirupsen/logrus"
)

// TieredStore puts a MemoryStore in front of a shared Store, such as Redis
// or LevelDB. Reads that miss the memory tier fall through to the shared
// tier, and what's found there is copied back with its original expiry.
// Writes go to both tiers.
type TieredStore struct {
	near *MemoryStore
	far  Store
	log  logrus.FieldLogger
}

// NewTieredStore creates a TieredStore. A failing far tier is logged and
// treated as a miss, so lookups can still be answered by the remote service.
func NewTieredStore(near *MemoryStore, far Store, log logrus.FieldLogger) *TieredStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TieredStore{near: near, far: far, log: log}
}

func (t *TieredStore) Get(ctx context.Context, ids []ID) (map[ID]*CachedResult, error) {
	results, err := t.near.Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	misses := make([]ID, 0, len(ids))
	for _, id := range ids {
		if results[id] == nil {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return results, nil
	}

	farResults, err := t.far.Get(ctx, misses)
	if err != nil {
		t.log.WithError(err).WithField("misses", len(misses)).
			Warn("scouter: shared store unavailable, using the memory tier only")
		return results, nil
	}

	backfill := make([]CachedResult, 0, len(farResults))
	for id, cached := range farResults {
		if cached == nil {
			continue
		}
		results[id] = cached
		backfill = append(backfill, *cached)
	}
	if len(backfill) > 0 {
		t.near.fill(backfill)
	}
	return results, nil
}

func (t *TieredStore) Update(ctx context.Context, results []Result) error {
	if err := t.near.Update(ctx, results); err != nil {
		return err
	}
	if err := t.far.Update(ctx, results); err != nil {
		t.log.WithError(err).WithField("results", len(results)).
			Warn("scouter: failed to write results to the shared store")
	}
	return nil
}

// SweepExpired sweeps both tiers and returns the total.
func (t *TieredStore) SweepExpired(ctx context.Context) (int, error) {
	nearSwept, err := t.near.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	farSwept, err := t.far.SweepExpired(ctx)
	if err != nil {
		return nearSwept, err
	}
	return nearSwept + farSwept, nil
}

// Dump merges both tiers. The memory tier wins when both hold an id.
func (t *TieredStore) Dump(ctx context.Context) ([]CachedResult, error) {
	farDump, err := t.far.Dump(ctx)
	if err != nil {
		return nil, err
	}
	nearDump, err := t.near.Dump(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[ID]struct{}, len(nearDump))
	dump := make([]CachedResult, 0, len(nearDump)+len(farDump))
	for _, e := range nearDump {
		seen[e.Result.ID()] = struct{}{}
		dump = append(dump, e)
	}
	for _, e := range farDump {
		if _, ok := seen[e.Result.ID()]; ok {
			continue
		}
		dump = append(dump, e)
	}
	return dump, nil
}
