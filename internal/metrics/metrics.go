package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabhub"

// Outcome labels for relay events.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	// Connections tracks authenticated live connections
	Connections prometheus.Gauge

	// Events counts inbound relay events by name and outcome
	Events *prometheus.CounterVec

	// EventLatency tracks how long each inbound event takes to handle
	EventLatency *prometheus.HistogramVec

	// MessagesPersisted counts stored messages by channel type
	MessagesPersisted *prometheus.CounterVec

	// HandshakeFailures counts rejected upgrades by reason
	HandshakeFailures *prometheus.CounterVec

	// SlowClients counts connections dropped because their send buffer was full
	SlowClients prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the relay collectors with reg. A *prometheus.Registry is
// also used as the gatherer behind Handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of authenticated websocket connections",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_total",
			Help:      "Total number of inbound websocket events by event and outcome",
		}, []string{"event", "outcome"}),
		EventLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ws_event_duration_seconds",
			Help:      "Latency of inbound websocket event handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		MessagesPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Total number of persisted messages by channel type",
		}, []string{"channel"}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_handshake_failures_total",
			Help:      "Total number of rejected websocket handshakes by reason",
		}, []string{"reason"}),
		SlowClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_clients_total",
			Help:      "Total number of connections dropped for a full send buffer",
		}),
		gatherer: prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler exposes the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
