package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smsdesk"

// Send results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds relay and gateway collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	InboundMessages prometheus.Counter
	StatusUpdates   prometheus.Counter
	DroppedPayloads *prometheus.CounterVec // by kind
	Sends           *prometheus.CounterVec // by result
	Broadcasts      *prometheus.CounterVec // by event
	DroppedPushes   prometheus.Counter
	Connections     prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		InboundMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound carrier messages relayed.",
		}),
		StatusUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Carrier delivery status callbacks relayed.",
		}),
		DroppedPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_payloads_total",
			Help:      "Malformed carrier payloads acknowledged and dropped.",
		}, []string{"kind"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Outbound send requests by result.",
		}, []string{"result"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events emitted to connected clients.",
		}, []string{"event"}),
		DroppedPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_pushes_total",
			Help:      "Events not queued because the push channel was full.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.InboundMessages,
		m.StatusUpdates,
		m.DroppedPayloads,
		m.Sends,
		m.Broadcasts,
		m.DroppedPushes,
		m.Connections,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
