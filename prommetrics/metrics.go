// Package prommetrics reports scheduler and store metrics to Prometheus.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scouter"

// Recorder implements scouter.MetricsRecorder.
type Recorder struct {
	cacheLookups      *prometheus.CounterVec
	cacheUnavailable  prometheus.Counter
	forcedEvictions   prometheus.Counter
	entriesEvicted    prometheus.Counter
	remoteCalls       *prometheus.CounterVec
	remoteBatchSize   prometheus.Histogram
	attemptsExhausted prometheus.Counter
	nextDelay         prometheus.Gauge
}

// NewRecorder creates the metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Ids looked up in the cache by outcome.",
		}, []string{"outcome"}),
		cacheUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_unavailable_total",
			Help:      "Failed batched cache reads and writes.",
		}),
		forcedEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_forced_evictions_total",
			Help:      "Evictions caused by a full shard.",
		}),
		entriesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_evicted_total",
			Help:      "Entries removed from the cache.",
		}),
		remoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Calls to the stats service by outcome.",
		}, []string{"outcome"}),
		remoteBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_batch_size",
			Help:      "Number of ids sent in a single call.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 150, 200},
		}),
		attemptsExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_exhausted_total",
			Help:      "Ids rejected after too many empty responses.",
		}),
		nextDelay: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_delay_seconds",
			Help:      "Delay before the next call to the stats service.",
		}),
	}
}

func (r *Recorder) CacheHit() {
	r.cacheLookups.WithLabelValues("hit").Inc()
}

func (r *Recorder) CacheMiss() {
	r.cacheLookups.WithLabelValues("miss").Inc()
}

func (r *Recorder) CacheUnavailable() {
	r.cacheUnavailable.Inc()
}

func (r *Recorder) ForcedEviction() {
	r.forcedEvictions.Inc()
}

func (r *Recorder) EntriesEvicted(n int) {
	r.entriesEvicted.Add(float64(n))
}

// RemoteCall is counted as a call. Blank responses and errors are counted
// again under their own outcome.
func (r *Recorder) RemoteCall(batchSize int) {
	r.remoteCalls.WithLabelValues("sent").Inc()
	r.remoteBatchSize.Observe(float64(batchSize))
}

func (r *Recorder) RemoteBlank() {
	r.remoteCalls.WithLabelValues("blank").Inc()
}

func (r *Recorder) RemoteError() {
	r.remoteCalls.WithLabelValues("error").Inc()
}

func (r *Recorder) AttemptsExhausted() {
	r.attemptsExhausted.Inc()
}

func (r *Recorder) NextDelay(d time.Duration) {
	r.nextDelay.Set(d.Seconds())
}
