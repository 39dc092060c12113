package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeError   = "error"
)

// Metrics holds the auth counters and the registry they are exposed from.
type Metrics struct {
	AuthEvents *prometheus.CounterVec
	registry   *prometheus.Registry
}

// NewMetrics registers the auth counters on reg. A nil reg gets a private
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeadmin_auth_events_total",
				Help: "Total number of auth workflow events by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		registry: reg,
	}
	reg.MustRegister(m.AuthEvents)
	return m
}

func (m *Metrics) Record(event, outcome string) {
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
