package scouter

import (
	"context"
	"time"
)

// DefaultCacheInterval is how long a stored result stays valid.
const DefaultCacheInterval = time.Hour

// Store is a keyed, expiring cache of results. Implementations must be safe
// for concurrent use, and each call must observe a consistent view of the
// store. Consistency across calls isn't required.
type Store interface {
	// Get returns exactly one entry per requested id. The value is nil if the
	// id is absent or has expired.
	Get(ctx context.Context, ids []ID) (map[ID]*CachedResult, error)
	// Update stamps every result with now plus the cache interval and
	// overwrites any previous entry for the same id.
	Update(ctx context.Context, results []Result) error
	// SweepExpired deletes every entry whose expiry is at or before now, and
	// returns the number of deleted entries.
	SweepExpired(ctx context.Context) (int, error)
	// Dump returns every stored entry, expired or not.
	Dump(ctx context.Context) ([]CachedResult, error)
}
