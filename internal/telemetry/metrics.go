package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebank_turns_total",
		Help: "Dialogue turns processed by source, intent and outcome",
	}, []string{"source", "intent", "status"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicebank_turn_duration_seconds",
		Help:    "Wall time of a dialogue turn from start to idle",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicebank_external_call_duration_seconds",
		Help:    "Latency of calls to transcription, classification, synthesis and banking services",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "op", "status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebank_active_sessions",
		Help: "Dialogue sessions currently registered",
	})

	BusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebank_busy_rejections_total",
		Help: "Turns rejected because another turn was in flight",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicebank_circuit_breaker_state",
		Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)

// ObserveCall records one external call.
func ObserveCall(service, op string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalCallDuration.WithLabelValues(service, op, status).Observe(time.Since(started).Seconds())
}
