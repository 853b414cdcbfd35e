// Package metrics exposes Prometheus collectors for the control loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voxarm"

// Metrics groups the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Utterances      *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	State           *prometheus.GaugeVec
	ProgramDuration *prometheus.HistogramVec
	ServoCommands   prometheus.Counter
	Announcements   prometheus.Counter
	Errors          *prometheus.CounterVec
}

// New creates and registers every collector, plus the Go runtime ones.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Utterances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "utterances_total",
				Help:      "Utterances interpreted, by resulting action",
			},
			[]string{"action"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Control loop state transitions, by target state",
			},
			[]string{"to"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "1 for the current control loop state, 0 otherwise",
			},
			[]string{"state"},
		),
		ProgramDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "program_duration_seconds",
				Help:      "Duration of motion program executions",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"program", "result"},
		),
		ServoCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "servo_commands_total",
			Help:      "Servo angle commands issued",
		}),
		Announcements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Announcements spoken to the operator",
		}),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors converted to announcements, by kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.Utterances, m.Transitions, m.State, m.ProgramDuration,
		m.ServoCommands, m.Announcements, m.Errors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTransition records a move from one state to another.
func (m *Metrics) ObserveTransition(from, to string) {
	m.Transitions.WithLabelValues(to).Inc()
	if from != "" {
		m.State.WithLabelValues(from).Set(0)
	}
	m.State.WithLabelValues(to).Set(1)
}

// ObserveProgram records one program run.
func (m *Metrics) ObserveProgram(program string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProgramDuration.WithLabelValues(program, result).Observe(d.Seconds())
}
