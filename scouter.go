package scouter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// KeySource provides the API key used for each remote call. It's consulted
// at call time, so keys can be rotated while the scheduler is running.
type KeySource interface {
	APIKey() string
}

// StaticKey is a KeySource that never changes.
type StaticKey string

func (k StaticKey) APIKey() string {
	return string(k)
}

// Scouter coalesces concurrent lookups for player estimates. Lookups are
// first resolved against a Store in short debounced batches, and whatever
// the store can't answer is sent to the remote service in batches that are
// paced by the service's rate limit headers.
type Scouter struct {
	store           Store
	client          QueryClient
	keys            KeySource
	clock           Clock
	log             logrus.FieldLogger
	metricsRecorder MetricsRecorder

	cacheDelay      time.Duration
	initialDelay    time.Duration
	defaultDelay    time.Duration
	blankRetryDelay time.Duration
	requestTimeout  time.Duration
	maxBatchSize    int
	maxAttempts     int
	limiter         *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[ID]*job

	cacheQueue []ID
	cacheTimer *timer

	remoteQueue  []ID
	remoteQueued map[ID]struct{}
	remoteTimer  *timer
	sending      bool
}

// New creates a scheduler that reads and writes results through store and
// fetches misses with client.
func New(store Store, client QueryClient, keys KeySource, opts ...Option) *Scouter {
	s := &Scouter{
		store:           store,
		client:          client,
		keys:            keys,
		clock:           NewClock(),
		log:             logrus.StandardLogger(),
		cacheDelay:      DefaultCacheDelay,
		initialDelay:    DefaultInitialDelay,
		defaultDelay:    DefaultDelay,
		blankRetryDelay: DefaultBlankRetryDelay,
		requestTimeout:  DefaultRequestTimeout,
		maxBatchSize:    DefaultMaxBatchSize,
		maxAttempts:     DefaultMaxAttempts,
		pending:         make(map[ID]*job),
		remoteQueued:    make(map[ID]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	validateArgs(s)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// timer is one armed stage timer. A fired timer only runs its stage if it's
// still the one stored in the scheduler.
type timer struct {
	stop      func() bool
	cancelled chan struct{}
}

func (t *timer) cancel() {
	t.stop()
	close(t.cancelled)
}

func (s *Scouter) arm(d time.Duration, fn func(*timer)) *timer {
	ch, stop := s.clock.NewTimer(d)
	t := &timer{stop: stop, cancelled: make(chan struct{})}
	safeGo(s.log, func() {
		select {
		case <-ch:
			fn(t)
		case <-t.cancelled:
		}
	})
	return t
}

// paced stretches delay so that the call it schedules also fits within the
// local outbound rate limit.
func (s *Scouter) paced(delay time.Duration) time.Duration {
	if s.limiter == nil {
		return delay
	}
	at := s.clock.Now().Add(delay)
	return delay + s.limiter.ReserveN(at, 1).DelayFrom(at)
}

// Close rejects every outstanding lookup with ErrClosed and cancels any
// remote call in progress. Lookups made after Close fail immediately.
func (s *Scouter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.cacheTimer != nil {
		s.cacheTimer.cancel()
		s.cacheTimer = nil
	}
	if s.remoteTimer != nil {
		s.remoteTimer.cancel()
		s.remoteTimer = nil
	}

	for id := range s.pending {
		s.reject(id, ErrClosed)
	}
	s.cacheQueue = nil
	s.remoteQueue = nil
	clear(s.remoteQueued)
	s.cancel()

	s.log.Info("scouter: closed")
	return nil
}

// NumPending returns the number of ids with unresolved callers.
func (s *Scouter) NumPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// QueueLength returns the number of ids waiting for a remote call.
func (s *Scouter) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remoteQueue)
}

// Running reports whether the remote stage is active, either waiting for
// its timer or in the middle of a call.
func (s *Scouter) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTimer != nil || s.sending
}
