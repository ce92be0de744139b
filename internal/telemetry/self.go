// Package telemetry instruments the simulator itself and optionally pushes
// the simulated metrics to an OTLP collector.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SelfMetrics are the simulator's own operational metrics. They live in a
// dedicated registry so the simulated families stay free of process noise.
type SelfMetrics struct {
	Registry *prometheus.Registry

	TickDuration     prometheus.Histogram
	Ticks            prometheus.Counter
	EventsDispatched *prometheus.CounterVec
	SessionsStarted  prometheus.Counter
	Reloads          prometheus.Counter
	EmitErrors       prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	RateLimited      prometheus.Counter
}

// NewSelfMetrics creates and registers the self-instrumentation metrics,
// including the Go runtime and process collectors.
func NewSelfMetrics() *SelfMetrics {
	m := &SelfMetrics{
		Registry: prometheus.NewRegistry(),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telesim_tick_duration_seconds",
			Help:    "Time spent executing one simulation tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesim_ticks_total",
			Help: "Simulation ticks executed",
		}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telesim_events_dispatched_total",
			Help: "Scenario timeline events dispatched, by event type",
		}, []string{"event_type"}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesim_sessions_started_total",
			Help: "Simulated sessions started",
		}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesim_scenario_reloads_total",
			Help: "Scenario reloads applied by the driver",
		}),
		EmitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesim_emit_errors_total",
			Help: "Session outcomes rejected by the metric registry",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telesim_http_requests_total",
			Help: "HTTP requests served, by path and status code",
		}, []string{"path", "code"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesim_http_rate_limited_total",
			Help: "HTTP requests rejected by the rate limiter",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TickDuration,
		m.Ticks,
		m.EventsDispatched,
		m.SessionsStarted,
		m.Reloads,
		m.EmitErrors,
		m.HTTPRequests,
		m.RateLimited,
	)
	return m
}
