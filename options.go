package scouter

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Defaults for the scheduler. They match the pacing that the stats service
// tolerates.
const (
	DefaultCacheDelay      = 10 * time.Millisecond
	DefaultInitialDelay    = 100 * time.Millisecond
	DefaultDelay           = time.Second
	DefaultBlankRetryDelay = 500 * time.Millisecond
	DefaultMaxBatchSize    = 200
	DefaultMaxAttempts     = 5
	DefaultRequestTimeout  = 30 * time.Second
)

type Option func(*Scouter)

// WithClock can be used to change the clock that the scheduler uses. This is useful for testing.
func WithClock(clock Clock) Option {
	return func(s *Scouter) {
		s.clock = clock
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scouter) {
		s.log = log
	}
}

// WithMetrics is used to make the scheduler report metrics.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Scouter) {
		s.metricsRecorder = recorder
	}
}

// WithCacheDelay sets the debounce window during which lookups are
// collected into one store read.
func WithCacheDelay(d time.Duration) Option {
	return func(s *Scouter) {
		s.cacheDelay = d
	}
}

// WithInitialDelay sets the delay before the first remote call after the
// scheduler has been idle. It's also used when a rate limit snapshot is stale.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Scouter) {
		s.initialDelay = d
	}
}

// WithDefaultDelay sets the pacing between remote calls when there's
// plenty of rate limit budget left, or no rate limit information at all.
func WithDefaultDelay(d time.Duration) Option {
	return func(s *Scouter) {
		s.defaultDelay = d
	}
}

// WithBlankRetryDelay sets the delay after the remote service returned an
// empty response.
func WithBlankRetryDelay(d time.Duration) Option {
	return func(s *Scouter) {
		s.blankRetryDelay = d
	}
}

// WithMaxBatchSize caps the number of ids sent in one remote call.
func WithMaxBatchSize(size int) Option {
	return func(s *Scouter) {
		s.maxBatchSize = size
	}
}

// WithMaxAttempts sets how many blank responses an id may receive before
// its callers get ErrTooManyAttempts.
func WithMaxAttempts(attempts int) Option {
	return func(s *Scouter) {
		s.maxAttempts = attempts
	}
}

// WithRequestTimeout bounds every remote call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Scouter) {
		s.requestTimeout = d
	}
}

// WithOutboundRateLimit puts a local ceiling on the rate of remote calls.
// The adaptive delay is never allowed to schedule calls faster than this.
func WithOutboundRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Scouter) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// validateArgs is a helper function that panics if the configuration is invalid.
func validateArgs(s *Scouter) {
	if s.store == nil {
		panic("store must not be nil")
	}

	if s.client == nil {
		panic("client must not be nil")
	}

	if s.keys == nil {
		panic("key source must not be nil")
	}

	if s.cacheDelay <= 0 {
		panic("cacheDelay must be greater than 0")
	}

	if s.initialDelay <= 0 || s.defaultDelay <= 0 || s.blankRetryDelay <= 0 {
		panic("delays must be greater than 0")
	}

	if s.maxBatchSize < 1 {
		panic("maxBatchSize must be greater than 0")
	}

	if s.maxAttempts < 0 {
		panic("maxAttempts must not be negative")
	}

	if s.requestTimeout <= 0 {
		panic("requestTimeout must be greater than 0")
	}

	if s.limiter != nil && s.limiter.Burst() < 1 && s.limiter.Limit() != rate.Inf {
		panic("outbound rate limit burst must be greater than 0")
	}
}
