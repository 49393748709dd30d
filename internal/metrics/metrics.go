// internal/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "whale_tracker"

func newCycles() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome",
		},
		[]string{"status"},
	)
}

func newCycleDuration() prometheus.Histogram {
	return prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full poll, detect, persist and notify cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
}

func newChanges() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Detected position changes by kind",
		},
		[]string{"kind"},
	)
}

func newFetchFailures() prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Addresses skipped because their positions could not be fetched",
		},
	)
}

func newDeliveryFailures() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed notification deliveries",
		},
		[]string{"permanent"},
	)
}

func newSubscribersRemoved() prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_removed_total",
			Help:      "Recipients deregistered after a permanent delivery failure",
		},
	)
}

func newTrackedAddresses() prometheus.Gauge {
	return prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_addresses",
			Help:      "Addresses polled in the last cycle",
		},
	)
}
