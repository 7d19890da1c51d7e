package prommetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	pendingDesc = prometheus.NewDesc(
		"scouter_pending_ids",
		"Ids with unresolved callers.",
		nil,
		nil,
	)
	queueDesc = prometheus.NewDesc(
		"scouter_remote_queue_length",
		"Ids waiting for a call to the stats service.",
		nil,
		nil,
	)
)

// Scheduler is the part of the scheduler the collector reads on each scrape.
type Scheduler interface {
	NumPending() int
	QueueLength() int
}

// SchedulerCollector is a custom collector that reads the scheduler's queue
// sizes on each scrape.
type SchedulerCollector struct {
	scheduler Scheduler
}

func NewSchedulerCollector(scheduler Scheduler) *SchedulerCollector {
	return &SchedulerCollector{scheduler: scheduler}
}

// Describe sends the metric descriptors to the channel.
func (c *SchedulerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pendingDesc
	ch <- queueDesc
}

// Collect emits the current queue sizes as gauges.
func (c *SchedulerCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(c.scheduler.NumPending()))
	ch <- prometheus.MustNewConstMetric(queueDesc, prometheus.GaugeValue, float64(c.scheduler.QueueLength()))
}
