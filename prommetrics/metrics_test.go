package prommetrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ffscout/scouter"
	"github.com/ffscout/scouter/prommetrics"
)

var _ scouter.MetricsRecorder = (*prommetrics.Recorder)(nil)

func TestRecorderCountsOutcomes(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewPedanticRegistry()
	recorder := prommetrics.NewRecorder(reg)

	recorder.CacheHit()
	recorder.CacheHit()
	recorder.CacheMiss()
	recorder.RemoteCall(200)
	recorder.RemoteBlank()
	recorder.EntriesEvicted(7)
	recorder.NextDelay(1500 * time.Millisecond)

	expected := `
# HELP scouter_cache_lookups_total Ids looked up in the cache by outcome.
# TYPE scouter_cache_lookups_total counter
scouter_cache_lookups_total{outcome="hit"} 2
scouter_cache_lookups_total{outcome="miss"} 1
# HELP scouter_cache_entries_evicted_total Entries removed from the cache.
# TYPE scouter_cache_entries_evicted_total counter
scouter_cache_entries_evicted_total 7
# HELP scouter_remote_calls_total Calls to the stats service by outcome.
# TYPE scouter_remote_calls_total counter
scouter_remote_calls_total{outcome="blank"} 1
scouter_remote_calls_total{outcome="sent"} 1
# HELP scouter_next_delay_seconds Delay before the next call to the stats service.
# TYPE scouter_next_delay_seconds gauge
scouter_next_delay_seconds 1.5
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"scouter_cache_lookups_total",
		"scouter_cache_entries_evicted_total",
		"scouter_remote_calls_total",
		"scouter_next_delay_seconds",
	)
	if err != nil {
		t.Error(err)
	}
}

type fakeScheduler struct{ pending, queued int }

func (f fakeScheduler) NumPending() int  { return f.pending }
func (f fakeScheduler) QueueLength() int { return f.queued }

func TestSchedulerCollector(t *testing.T) {
	t.Parallel()
	collector := prommetrics.NewSchedulerCollector(fakeScheduler{pending: 12, queued: 5})

	expected := `
# HELP scouter_pending_ids Ids with unresolved callers.
# TYPE scouter_pending_ids gauge
scouter_pending_ids 12
# HELP scouter_remote_queue_length Ids waiting for a call to the stats service.
# TYPE scouter_remote_queue_length gauge
scouter_remote_queue_length 5
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(collector); n != 2 {
		t.Errorf("expected 2 metrics, got %d", n)
	}
}
