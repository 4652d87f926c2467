// Package metrics provides Prometheus metrics for the relay service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	SendsTotal      *prometheus.CounterVec
	DeliveriesTotal prometheus.Counter
	ExpiredTotal    prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	SweepsTotal     *prometheus.CounterVec
	SessionsPurged  prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sends_total",
				Help: "Total send attempts by result (accepted, duplicate, rejected).",
			},
			[]string{"result"},
		),
		DeliveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_deliveries_total",
				Help: "Messages delivered to pollers (consume-once dequeues).",
			},
		),
		ExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_messages_expired_total",
				Help: "Messages dropped by TTL expiry before delivery.",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sweeps_total",
				Help: "Background cleanup sweeps by result (ok, error).",
			},
			[]string{"result"},
		),
		SessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_sessions_purged_total",
				Help: "Session records removed by age-based retention.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.SendsTotal)
	reg.MustRegister(m.DeliveriesTotal)
	reg.MustRegister(m.ExpiredTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.SweepsTotal)
	reg.MustRegister(m.SessionsPurged)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSend increments the send counter.
func (m *Metrics) RecordSend(result string) {
	m.SendsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery increments the delivery counter.
func (m *Metrics) RecordDelivery() {
	m.DeliveriesTotal.Inc()
}

// RecordExpired adds to the expired-message counter.
func (m *Metrics) RecordExpired(n int) {
	m.ExpiredTotal.Add(float64(n))
}

// RecordSweep increments the sweep counter.
func (m *Metrics) RecordSweep(result string) {
	m.SweepsTotal.WithLabelValues(result).Inc()
}

// RecordPurgedSessions adds to the purged-session counter.
func (m *Metrics) RecordPurgedSessions(n int64) {
	m.SessionsPurged.Add(float64(n))
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
