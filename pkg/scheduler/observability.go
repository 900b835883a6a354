package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcome labels for the ticks counter.
const (
	tickStatusDispatched   = "dispatched"
	tickStatusSkippedBusy  = "skipped_busy"
	tickStatusSkippedQueue = "skipped_queue"
	tickStatusSkippedStale = "skipped_stale"
)

var (
	schedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_scheduler_ticks_total",
			Help: "Total scheduler ticks by outcome: dispatched to a worker, skipped because the previous callback was still running, skipped because the dispatch queue was full, or skipped as stale after the loop fell behind.",
		},
		[]string{"status"},
	)

	schedulerSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_scheduler_subscriptions_active",
			Help: "Number of active periodic subscriptions.",
		},
	)

	schedulerDispatchLagSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_scheduler_dispatch_lag_seconds",
			Help:    "Delay between a tick's scheduled deadline and its dispatch to a worker.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func recordTicks(status string, n uint64) {
	schedulerTicksTotal.WithLabelValues(normalizeSchedulerLabel(status)).Add(float64(n))
}

func incrementSubscriptions() {
	schedulerSubscriptionsActive.Inc()
}

func decrementSubscriptions() {
	schedulerSubscriptionsActive.Dec()
}

func observeDispatchLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	schedulerDispatchLagSeconds.Observe(lag.Seconds())
}

func normalizeSchedulerLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
