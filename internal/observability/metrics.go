package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the domain counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrisense_analyses_total",
			Help: "Farm analyses by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrisense_alerts_total",
			Help: "Alert records raised by alert type.",
		},
		[]string{"type"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrisense_deliveries_total",
			Help: "SMS and voice deliveries by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrisense_sweeps_total",
			Help: "Scheduler sweeps by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// Sweeps pause seconds between entries, so buckets start high.
	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrisense_sweep_duration_seconds",
			Help:    "Wall time of scheduler sweeps.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(analysesTotal, alertsTotal, deliveriesTotal, sweepsTotal, sweepDuration)
}

// ObserveAnalysis counts one analysis attempt.
func ObserveAnalysis(provider string, err error) {
	analysesTotal.WithLabelValues(provider, outcome(err)).Inc()
}

// ObserveAlert counts one persisted alert.
func ObserveAlert(alertType string) {
	alertsTotal.WithLabelValues(alertType).Inc()
}

// ObserveDelivery counts one SMS or voice attempt; channel is "sms" or "voice".
func ObserveDelivery(channel, outcome string) {
	deliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveSweep records a finished sweep.
func ObserveSweep(kind string, started time.Time, err error) {
	sweepsTotal.WithLabelValues(kind, outcome(err)).Inc()
	sweepDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
