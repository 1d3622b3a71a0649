// Package metrics provides Prometheus-based metrics recording for dialogue turns and assistance calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives engine and assistance observations.
type Recorder interface {
	ObserveTurn(phase, outcome string, duration time.Duration)
	ObserveAssist(category, outcome string, tokens int, cost float64, duration time.Duration)
	SessionStarted()
	SessionEnded(status string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveTurn(string, string, time.Duration) {}
func (Nop) ObserveAssist(string, string, int, float64, time.Duration) {}
func (Nop) SessionStarted() {}
func (Nop) SessionEnded(string) {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	assistTotal    *prometheus.CounterVec
	assistTokens   *prometheus.CounterVec
	assistCost     *prometheus.CounterVec
	assistDuration *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
	sessionsEnded  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the ShiftGuide metrics with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftguide_turns_total",
				Help: "Total number of dialogue turns by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiftguide_turn_duration_seconds",
				Help:    "Duration of dialogue turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		assistTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftguide_assist_total",
				Help: "Assistance evaluations by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		assistTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftguide_assist_tokens_total",
				Help: "Tokens consumed by assistance calls",
			},
			[]string{"category"},
		),
		assistCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftguide_assist_cost_usd_total",
				Help: "Cost in USD of assistance calls",
			},
			[]string{"category"},
		),
		assistDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shiftguide_assist_duration_seconds",
				Help:    "Duration of completion-service calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiftguide_sessions_active",
			Help: "Sessions currently held in memory",
		}),
		sessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shiftguide_sessions_ended_total",
				Help: "Sessions that left memory, by final status",
			},
			[]string{"status"},
		),
	}
}

// ObserveTurn records one processed turn.
func (p *PrometheusRecorder) ObserveTurn(phase, outcome string, duration time.Duration) {
	p.turnsTotal.WithLabelValues(phase, outcome).Inc()
	p.turnDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveAssist records one assistance evaluation. Tokens, cost and duration are only
// recorded when a call was made.
func (p *PrometheusRecorder) ObserveAssist(category, outcome string, tokens int, cost float64, duration time.Duration) {
	p.assistTotal.WithLabelValues(category, outcome).Inc()
	if duration > 0 {
		p.assistTokens.WithLabelValues(category).Add(float64(tokens))
		p.assistCost.WithLabelValues(category).Add(cost)
		p.assistDuration.WithLabelValues(category).Observe(duration.Seconds())
	}
}

// SessionStarted increments the active session gauge.
func (p *PrometheusRecorder) SessionStarted() {
	p.sessionsActive.Inc()
}

// SessionEnded decrements the active session gauge.
func (p *PrometheusRecorder) SessionEnded(status string) {
	p.sessionsActive.Dec()
	p.sessionsEnded.WithLabelValues(status).Inc()
}
