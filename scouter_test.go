package scouter_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/ffscout/scouter"
)

var errStoreDown = errors.New("store is down")

type TestMetricsRecorder struct {
	sync.Mutex
	cacheHits         int
	cacheMisses       int
	cacheUnavailable  int
	forcedEvictions   int
	evictedEntries    int
	remoteCalls       int
	remoteBlanks      int
	remoteErrors      int
	attemptsExhausted int
	batchSizes        []int
	delays            []time.Duration
}

func newTestMetricsRecorder() *TestMetricsRecorder {
	return &TestMetricsRecorder{
		batchSizes: make([]int, 0),
		delays:     make([]time.Duration, 0),
	}
}

func (r *TestMetricsRecorder) CacheHit() {
	r.Lock()
	defer r.Unlock()
	r.cacheHits++
}

func (r *TestMetricsRecorder) CacheMiss() {
	r.Lock()
	defer r.Unlock()
	r.cacheMisses++
}

func (r *TestMetricsRecorder) CacheUnavailable() {
	r.Lock()
	defer r.Unlock()
	r.cacheUnavailable++
}

func (r *TestMetricsRecorder) ForcedEviction() {
	r.Lock()
	defer r.Unlock()
	r.forcedEvictions++
}

func (r *TestMetricsRecorder) EntriesEvicted(n int) {
	r.Lock()
	defer r.Unlock()
	r.evictedEntries += n
}

func (r *TestMetricsRecorder) RemoteCall(batchSize int) {
	r.Lock()
	defer r.Unlock()
	r.remoteCalls++
	r.batchSizes = append(r.batchSizes, batchSize)
}

func (r *TestMetricsRecorder) RemoteBlank() {
	r.Lock()
	defer r.Unlock()
	r.remoteBlanks++
}

func (r *TestMetricsRecorder) RemoteError() {
	r.Lock()
	defer r.Unlock()
	r.remoteErrors++
}

func (r *TestMetricsRecorder) AttemptsExhausted() {
	r.Lock()
	defer r.Unlock()
	r.attemptsExhausted++
}

func (r *TestMetricsRecorder) NextDelay(d time.Duration) {
	r.Lock()
	defer r.Unlock()
	r.delays = append(r.delays, d)
}

func (r *TestMetricsRecorder) lastDelay() time.Duration {
	r.Lock()
	defer r.Unlock()
	if len(r.delays) == 0 {
		return 0
	}
	return r.delays[len(r.delays)-1]
}

type queryResult struct {
	response scouter.QueryResponse
	err      error
}

// QueryObserver is a scripted QueryClient. Scripted responses are used in
// order, and once they run out every id gets an estimate.
type QueryObserver struct {
	sync.Mutex
	calls         [][]scouter.ID
	keys          []string
	scripted      []queryResult
	CallCompleted chan struct{}
}

func NewQueryObserver(bufferSize int) *QueryObserver {
	return &QueryObserver{
		calls:         make([][]scouter.ID, 0),
		CallCompleted: make(chan struct{}, bufferSize),
	}
}

// Respond adds a scripted response.
func (q *QueryObserver) Respond(response scouter.QueryResponse, err error) {
	q.Lock()
	defer q.Unlock()
	q.scripted = append(q.scripted, queryResult{response: response, err: err})
}

// Blank adds a scripted empty response.
func (q *QueryObserver) Blank() {
	q.Respond(scouter.QueryResponse{Blank: true}, nil)
}

func (q *QueryObserver) Query(_ context.Context, apiKey string, ids []scouter.ID) (scouter.QueryResponse, error) {
	q.Lock()
	defer func() {
		q.Unlock()
		select {
		case q.CallCompleted <- struct{}{}:
		default:
		}
	}()

	copiedIDs := make([]scouter.ID, len(ids))
	copy(copiedIDs, ids)
	q.calls = append(q.calls, copiedIDs)
	q.keys = append(q.keys, apiKey)

	if len(q.scripted) > 0 {
		next := q.scripted[0]
		q.scripted = q.scripted[1:]
		return next.response, next.err
	}

	results := make(map[scouter.ID]scouter.Result, len(ids))
	for _, id := range ids {
		results[id] = estimateFor(id)
	}
	return scouter.QueryResponse{Results: results}, nil
}

func (q *QueryObserver) numCalls() int {
	q.Lock()
	defer q.Unlock()
	return len(q.calls)
}

func (q *QueryObserver) call(i int) []scouter.ID {
	q.Lock()
	defer q.Unlock()
	return q.calls[i]
}

func (q *QueryObserver) AssertCallCount(t *testing.T, count int) {
	t.Helper()
	if n := q.numCalls(); n != count {
		t.Errorf("expected %d remote calls, got %d", count, n)
	}
}

func (q *QueryObserver) AssertCall(t *testing.T, i int, ids []scouter.ID) {
	t.Helper()
	if diff := cmp.Diff(ids, q.call(i)); diff != "" {
		t.Errorf("unexpected ids in call %d (-want +got):\n%s", i, diff)
	}
}

// failingStore wraps a MemoryStore and fails reads while getErr is set.
type failingStore struct {
	*scouter.MemoryStore
	mu     sync.Mutex
	getErr error
}

func (f *failingStore) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *failingStore) Get(ctx context.Context, ids []scouter.ID) (map[scouter.ID]*scouter.CachedResult, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryStore.Get(ctx, ids)
}

func estimateFor(id scouter.ID) scouter.Estimate {
	return scouter.Estimate{
		PlayerID:      id,
		Score:         2.5,
		Estimate:      int64(id) * 1000,
		EstimateHuman: "1k",
		LastUpdated:   time.Unix(1_700_000_000, 0),
	}
}

func silentLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newMemoryStore(clock scouter.Clock) *scouter.MemoryStore {
	return scouter.NewMemoryStore(10_000, 10, time.Hour, 10, scouter.WithStoreClock(clock))
}

// waitFor polls cond until it holds. Stage transitions happen on timer
// goroutines, so tests can't observe them synchronously.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForQueue(t *testing.T, s *scouter.Scouter, n int) {
	t.Helper()
	waitFor(t, "the remote queue", func() bool { return s.QueueLength() == n })
}

func waitForCalls(t *testing.T, q *QueryObserver, n int) {
	t.Helper()
	waitFor(t, "remote calls", func() bool { return q.numCalls() == n })
}

// await returns the outcome of a future that is expected to settle soon.
func await(t *testing.T, f *scouter.Future) (scouter.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("future for %d never settled", f.ID())
	}
	return res, err
}

func isSettled(f *scouter.Future) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}
