package engine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	setups   prometheus.Counter
}

// newMetrics registers on reg; a nil reg leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zerokey",
			Subsystem: "engine",
			Name:      "phase_duration_seconds",
			Help:      "Duration of proof lifecycle phases.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"phase"}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zerokey",
			Subsystem: "engine",
			Name:      "phase_total",
			Help:      "Proof lifecycle phase outcomes.",
		}, []string{"phase", "outcome"}),
		setups: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zerokey",
			Subsystem: "engine",
			Name:      "setup_runs_total",
			Help:      "Trusted setups actually executed by the backend.",
		}),
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrWitness):
		return "witness_error"
	case errors.Is(err, ErrCompilation):
		return "compilation_error"
	case errors.Is(err, ErrProving):
		return "proving_error"
	case errors.Is(err, ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (m *metrics) observe(phase string, start time.Time, err error) {
	m.duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	m.calls.WithLabelValues(phase, outcome(err)).Inc()
}
