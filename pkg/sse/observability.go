package sse

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reason labels for the ticks-skipped counter.
const (
	skipReasonCoalesced = "coalesced"
	skipReasonTerminal  = "terminal"
)

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_sessions_active",
			Help: "Number of active stream sessions.",
		},
	)

	sessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_sessions_started_total",
			Help: "Total stream sessions accepted by the engine.",
		},
	)

	sessionTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_session_terminations_total",
			Help: "Total session terminations by terminal state.",
		},
		[]string{"state"},
	)

	eventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_emitted_total",
			Help: "Total events delivered to sinks, by route.",
		},
		[]string{"route"},
	)

	ticksSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ticks_skipped_total",
			Help: "Total ticks a session observed as skipped: coalesced away by the scheduler or arriving after the session went terminal.",
		},
		[]string{"reason"},
	)

	eventWriteSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_event_write_seconds",
			Help:    "Time spent writing one encoded event to a sink.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

func incrementSessionsActive() {
	sessionsActive.Inc()
}

func decrementSessionsActive() {
	sessionsActive.Dec()
}

func recordSessionStarted() {
	sessionsStartedTotal.Inc()
}

func recordSessionTermination(state string) {
	sessionTerminationsTotal.WithLabelValues(normalizeStreamLabel(state)).Inc()
}

func recordEventEmitted(route string) {
	eventsEmittedTotal.WithLabelValues(normalizeStreamLabel(route)).Inc()
}

func recordTicksSkipped(reason string, n uint64) {
	ticksSkippedTotal.WithLabelValues(normalizeStreamLabel(reason)).Add(float64(n))
}

func observeEventWrite(d time.Duration) {
	eventWriteSeconds.Observe(d.Seconds())
}

func normalizeStreamLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
