// Package metrics exposes Prometheus counters for the TCP and HTTP
// surfaces. All collectors live in a private registry so tests can run in
// parallel without global registration conflicts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	EventsIngested    prometheus.Counter
	DaysRotated       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saleswatch",
		Name:      "requests_total",
		Help:      "Requests handled on the binary protocol, by operation and status.",
	}, []string{"op", "status"})

	m.ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "saleswatch",
		Name:      "active_connections",
		Help:      "Open client connections.",
	})

	m.EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "saleswatch",
		Name:      "events_ingested_total",
		Help:      "Sale events appended to the current day.",
	})

	m.DaysRotated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "saleswatch",
		Name:      "days_rotated_total",
		Help:      "Completed day rotations.",
	})

	m.registry.MustRegister(m.RequestsTotal, m.ActiveConnections, m.EventsIngested, m.DaysRotated)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
