// Package metrics exposes Prometheus instrumentation for the ingestion
// gateway and the relay bridge. Every method is safe on a nil *Metrics, so
// components can run uninstrumented in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	gatherer prometheus.Gatherer

	ingestions     *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	schemaMisses   prometheus.Counter
	connections    prometheus.Gauge
	relayForwarded prometheus.Counter
	relayDropped   *prometheus.CounterVec
	relayDials     *prometheus.CounterVec
	reconnects     prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrelay_ingestions_total",
			Help: "Ingestion attempts by source channel and acknowledgment status.",
		}, []string{"source", "status"}),
		ingestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketrelay_ingestion_duration_seconds",
			Help:    "Time from receipt to acknowledgment.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrelay_classifier_fallbacks_total",
			Help: "Classifications where some or all fields fell back to defaults.",
		}, []string{"reason"}),
		schemaMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketrelay_schema_misses_total",
			Help: "Ingestions skipped because the destination schema was unavailable.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ticketrelay_gateway_connections",
			Help: "Open persistent connections on the gateway.",
		}),
		relayForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketrelay_relay_forwarded_total",
			Help: "Chat messages forwarded to the gateway.",
		}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrelay_relay_dropped_total",
			Help: "Chat messages not forwarded, by reason.",
		}, []string{"reason"}),
		relayDials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrelay_relay_dials_total",
			Help: "Relay connection attempts by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketrelay_relay_reconnects_total",
			Help: "Times the relay lost its gateway connection.",
		}),
	}
	reg.MustRegister(
		m.ingestions, m.ingestLatency, m.fallbacks, m.schemaMisses,
		m.connections, m.relayForwarded, m.relayDropped, m.relayDials, m.reconnects,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Ingestion(source, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(source, status).Inc()
	m.ingestLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ClassifierFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) SchemaMiss() {
	if m == nil {
		return
	}
	m.schemaMisses.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) RelayForwarded() {
	if m == nil {
		return
	}
	m.relayForwarded.Inc()
}

func (m *Metrics) RelayDropped(reason string) {
	if m == nil {
		return
	}
	m.relayDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RelayDial(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.relayDials.WithLabelValues(result).Inc()
}

func (m *Metrics) RelayReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
