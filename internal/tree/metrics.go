package tree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes used as metric label values.
const (
	OutcomeOK         = "ok"
	OutcomeConstraint = "constraint"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	Commands *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcbtree_commands_total",
				Help: "Tree commands by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dcbtree_command_duration_seconds",
				Help:    "Duration of tree commands, log round trips included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.Duration)
	}
	return m
}

func (m *Metrics) observe(command string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, Outcome(err)).Inc()
	m.Duration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// Outcome classifies a command result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsConstraintError(err):
		return OutcomeConstraint
	case IsConflict(err):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
