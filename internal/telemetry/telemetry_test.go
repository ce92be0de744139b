package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"telesim/internal/config"
)

func TestNewSelfMetrics(t *testing.T) {
	m := NewSelfMetrics()

	m.Ticks.Inc()
	m.EventsDispatched.WithLabelValues("recovery").Inc()
	m.TickDuration.Observe(0.002)

	if got := counterValue(t, m.Ticks); got != 1 {
		t.Errorf("expected 1 tick, got %v", got)
	}
	if got := counterValue(t, m.EventsDispatched.WithLabelValues("recovery")); got != 1 {
		t.Errorf("expected 1 recovery event, got %v", got)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() == "telesim_tick_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("tick duration histogram not gathered")
	}
}

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{}, prometheus.NewRegistry(), "telesim", "test", "run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("expected nil pusher when endpoint is empty")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil shutdown should be a no-op, got %v", err)
	}
}

func TestInit_HTTPPushesGatheredMetrics(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/metrics" {
			requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pushed_total", Help: "Pushed."})
	reg.MustRegister(c)
	c.Add(3)

	cfg := config.TelemetryConfig{
		Endpoint:     strings.TrimPrefix(srv.URL, "http://"),
		Protocol:     "http",
		Insecure:     true,
		PushInterval: time.Hour,
	}
	p, err := Init(context.Background(), cfg, reg, "telesim", "test", "run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if requests.Load() == 0 {
		t.Error("expected at least one OTLP export request")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write: %v", err)
	}
	return m.GetCounter().GetValue()
}
