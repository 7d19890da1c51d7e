package scouter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ffscout/scouter"
)

func TestConcurrentLookupsAreQueuedOnce(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())
	observer := NewQueryObserver(10)
	s := newScouter(t, clock, newMemoryStore(clock), observer)

	futures := make([]*scouter.Future, 100)
	var wg sync.WaitGroup
	for i := range futures {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futures[i] = s.Lookup(scouter.ID(i%10 + 1))
		}()
	}
	wg.Wait()

	if n := s.NumPending(); n != 10 {
		t.Fatalf("expected 10 pending ids, got %d", n)
	}

	clock.Add(cacheDelay)
	waitForQueue(t, s, 10)
	clock.Add(initialDelay)

	for i, f := range futures {
		res, err := await(t, f)
		if err != nil {
			t.Fatal(err)
		}
		if want := scouter.ID(i%10 + 1); res.ID() != want {
			t.Errorf("expected a result for %d, got %d", want, res.ID())
		}
	}
	observer.AssertCallCount(t, 1)
	if n := len(observer.call(0)); n != 10 {
		t.Errorf("expected 10 ids in the call, got %d", n)
	}
}

func TestLookupOfAnInFlightIDSharesTheFuture(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	client := scouter.QueryFunc(func(_ context.Context, _ string, ids []scouter.ID) (scouter.QueryResponse, error) {
		calls.Add(1)
		close(started)
		<-release
		return scouter.QueryResponse{Results: map[scouter.ID]scouter.Result{ids[0]: estimateFor(ids[0])}}, nil
	})
	s := newScouter(t, clock, newMemoryStore(clock), client)

	first := s.Lookup(1)
	clock.Add(cacheDelay)
	waitForQueue(t, s, 1)
	clock.Add(initialDelay)
	<-started

	if !s.Running() {
		t.Error("expected the remote stage to be running during a call")
	}
	second := s.Lookup(1)
	if second != first {
		t.Error("expected a lookup during the call to share the future")
	}
	if n := s.QueueLength(); n != 0 {
		t.Errorf("expected the in flight id not to be queued again, got %d", n)
	}

	close(release)
	if _, err := await(t, second); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}

func TestFuturesCanBeAwaitedByManyGoroutines(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())
	s := newScouter(t, clock, newMemoryStore(clock), NewQueryObserver(10))

	f := s.Lookup(1)
	results := make(chan scouter.Result, 50)
	for i := 0; i < 50; i++ {
		go func() {
			res, err := f.Wait(context.Background())
			if err != nil {
				results <- nil
				return
			}
			results <- res
		}()
	}

	clock.Add(cacheDelay)
	waitForQueue(t, s, 1)
	clock.Add(initialDelay)

	for i := 0; i < 50; i++ {
		select {
		case res := <-results:
			if res == nil || res.ID() != 1 {
				t.Fatalf("unexpected result %v", res)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for the waiters")
		}
	}
}
