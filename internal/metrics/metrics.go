// Package metrics holds the Prometheus collectors for the processor and queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tweetsweep",
			Subsystem: "processor",
			Name:      "ticks_total",
			Help:      "Processor ticks by outcome",
		},
		[]string{"action"},
	)
	deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tweetsweep",
			Subsystem: "processor",
			Name:      "tweets_total",
			Help:      "Tweet delete attempts by result",
		},
		[]string{"result"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tweetsweep",
			Subsystem: "processor",
			Name:      "remote_failures_total",
			Help:      "Remote API failures by kind",
		},
		[]string{"kind"},
	)
	queueJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tweetsweep",
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Jobs in the store by status, as of the last tick",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(ticks, deletions, failures, queueJobs)
}

// ObserveTick counts one finished tick.
func ObserveTick(action string) {
	ticks.WithLabelValues(action).Inc()
}

// ObserveDeletions counts n delete attempts with the given result.
func ObserveDeletions(result string, n int) {
	if n <= 0 {
		return
	}
	deletions.WithLabelValues(result).Add(float64(n))
}

// ObserveFailure counts one remote failure.
func ObserveFailure(kind string) {
	failures.WithLabelValues(kind).Inc()
}

// SetQueueDepth replaces the per-status job gauges. Statuses missing from
// counts are reset to zero.
func SetQueueDepth(statuses []string, counts map[string]int) {
	for _, s := range statuses {
		queueJobs.WithLabelValues(s).Set(float64(counts[s]))
	}
}
