package scouter

import "context"

// Future is the shared outcome of a lookup. Every caller that asks for the
// same id while it's outstanding receives the same Future.
type Future struct {
	id     ID
	done   chan struct{}
	result Result
	err    error
}

func newFuture(id ID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the id the future was created for.
func (f *Future) ID() ID {
	return f.id
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle must only be called once, by the goroutine that removed the job.
func (f *Future) settle(result Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// job is the scheduler's bookkeeping for one id with unresolved callers.
type job struct {
	future   *Future
	inFlight bool
	attempts int
}

// resolve should be called with a lock. The job is removed before the
// future settles, so a lookup that observes the result creates a new job.
func (s *Scouter) resolve(id ID, result Result) {
	j, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	j.future.settle(result, nil)
}

// reject should be called with a lock.
func (s *Scouter) reject(id ID, err error) {
	j, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	j.future.settle(nil, err)
}
