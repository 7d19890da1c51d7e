package scouter

import (
	"context"
	"errors"
	"fmt"
)

// Lookup returns the future for id. Concurrent lookups for an id that is
// still outstanding share one future, and the id is queued at most once.
func (s *Scouter) Lookup(id ID) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.pending[id]; ok {
		return j.future
	}

	f := newFuture(id)
	if s.closed {
		f.settle(nil, ErrClosed)
		return f
	}

	s.pending[id] = &job{future: f}
	s.enqueueCache(id)
	return f
}

// Get looks up a single id and waits for the result.
func (s *Scouter) Get(ctx context.Context, id ID) (Result, error) {
	return s.Lookup(id).Wait(ctx)
}

// GetMany looks up every id, flushes the cache stage and waits for all of
// them. The returned map holds the ids that resolved. The error joins the
// failures of the rest.
func (s *Scouter) GetMany(ctx context.Context, ids []ID) (map[ID]Result, error) {
	futures := make([]*Future, 0, len(ids))
	for _, id := range ids {
		futures = append(futures, s.Lookup(id))
	}
	s.Flush()

	results := make(map[ID]Result, len(ids))
	var errs []error
	for _, f := range futures {
		res, err := f.Wait(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			errs = append(errs, fmt.Errorf("id %d: %w", f.ID(), err))
			continue
		}
		results[f.ID()] = res
	}
	return results, errors.Join(errs...)
}

// Flush runs the cache stage right away instead of waiting for the
// debounce window to close.
func (s *Scouter) Flush() {
	safeGo(s.log, func() {
		s.processCache(nil)
	})
}

// enqueueCache should be called with a lock.
func (s *Scouter) enqueueCache(id ID) {
	s.cacheQueue = append(s.cacheQueue, id)
	if s.cacheTimer == nil {
		s.cacheTimer = s.arm(s.cacheDelay, s.processCache)
	}
}

// processCache drains the cache queue and reads every id from the store in
// a single call. Hits resolve their futures and misses move on to the
// remote queue. A nil t means the stage was flushed.
func (s *Scouter) processCache(t *timer) {
	s.mu.Lock()
	if t != nil && s.cacheTimer != t {
		s.mu.Unlock()
		return
	}
	if s.cacheTimer != nil {
		s.cacheTimer.cancel()
		s.cacheTimer = nil
	}
	ids := s.cacheQueue
	s.cacheQueue = nil
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	cached, err := s.store.Get(s.ctx, ids)
	if err != nil {
		s.log.WithError(err).WithField("batch_size", len(ids)).
			Warn("scouter: cache unavailable, sending batch to the remote service")
		s.reportCacheUnavailable()
		cached = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var hits, misses int
	for _, id := range ids {
		if c, ok := cached[id]; ok && c != nil && c.Result != nil {
			s.resolve(id, c.Result)
			hits++
			continue
		}
		s.enqueueRemote(id)
		misses++
	}
	s.reportCacheHits(hits, misses)
	s.log.WithField("hits", hits).WithField("misses", misses).Debug("scouter: cache batch processed")
}

// enqueueRemote should be called with a lock. It starts the remote stage
// when it's idle.
func (s *Scouter) enqueueRemote(id ID) {
	j, ok := s.pending[id]
	if !ok || j.inFlight {
		return
	}
	if _, queued := s.remoteQueued[id]; queued {
		return
	}

	s.remoteQueue = append(s.remoteQueue, id)
	s.remoteQueued[id] = struct{}{}

	if s.remoteTimer == nil && !s.sending && !s.closed {
		s.remoteTimer = s.arm(s.paced(s.initialDelay), s.processRemote)
	}
}
