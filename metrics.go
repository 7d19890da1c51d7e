package scouter

import "time"

type MetricsRecorder interface {
	// CacheHit is called for every id that was resolved from the store.
	CacheHit()
	// CacheMiss is called for every id that had to be sent to the remote service.
	CacheMiss()
	// CacheUnavailable is called when a batched store read fails.
	CacheUnavailable()
	// ForcedEviction is called when a store shard reaches its capacity, and
	// has to evict entries in order to write a new one.
	ForcedEviction()
	// EntriesEvicted is called when the store evicts or sweeps entries.
	EntriesEvicted(int)
	// RemoteCall is called with the size of every batch sent to the remote service.
	RemoteCall(batchSize int)
	// RemoteBlank is called when the remote service returned an empty body.
	RemoteBlank()
	// RemoteError is called when a remote call failed.
	RemoteError()
	// AttemptsExhausted is called for every id rejected after too many blank responses.
	AttemptsExhausted()
	// NextDelay is called with the delay before the next remote call.
	NextDelay(time.Duration)
}

func (s *Scouter) reportCacheHits(hits, misses int) {
	if s.metricsRecorder == nil {
		return
	}
	for i := 0; i < hits; i++ {
		s.metricsRecorder.CacheHit()
	}
	for i := 0; i < misses; i++ {
		s.metricsRecorder.CacheMiss()
	}
}

func (s *Scouter) reportCacheUnavailable() {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.CacheUnavailable()
}

func (s *Scouter) reportRemoteCall(n int) {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.RemoteCall(n)
}

func (s *Scouter) reportRemoteBlank() {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.RemoteBlank()
}

func (s *Scouter) reportRemoteError() {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.RemoteError()
}

func (s *Scouter) reportAttemptsExhausted() {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.AttemptsExhausted()
}

func (s *Scouter) reportNextDelay(d time.Duration) {
	if s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.NextDelay(d)
}
