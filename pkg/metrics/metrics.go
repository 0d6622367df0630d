package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the chat collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive   prometheus.Gauge
	AuthFailures        prometheus.Counter
	MessagesPersisted   *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	Deliveries          *prometheus.CounterVec
	Dropped             prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomchat_connections_active",
			Help: "Registered websocket connections.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_auth_failures_total",
			Help: "Rejected connection handshakes.",
		}),
		MessagesPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_messages_persisted_total",
			Help: "Messages acknowledged by the store.",
		}, []string{"room"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_persistence_failures_total",
			Help: "Store appends that failed.",
		}, []string{"room"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_broadcast_deliveries_total",
			Help: "Events enqueued to room members.",
		}, []string{"room"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_outbound_dropped_total",
			Help: "Outbound events discarded because a client queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.ConnectionsActive,
		m.AuthFailures,
		m.MessagesPersisted,
		m.PersistenceFailures,
		m.Deliveries,
		m.Dropped,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the collectors at /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.AuthFailures.Inc()
}

func (m *Metrics) Persisted(room string) {
	if m == nil {
		return
	}
	m.MessagesPersisted.WithLabelValues(room).Inc()
}

func (m *Metrics) PersistFailed(room string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(room).Inc()
}

func (m *Metrics) Delivered(room string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deliveries.WithLabelValues(room).Add(float64(n))
}

func (m *Metrics) Drop() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
