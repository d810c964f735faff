package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the order broker's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated     *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	activeConnections prometheus.Gauge
	chatRequests      *prometheus.CounterVec
	extractions       *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
	retentionDeleted  *prometheus.CounterVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ordersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_orders_created_total",
				Help: "Orders created, by source and order type",
			},
			[]string{"source", "order_type"},
		),
		statusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_order_status_changes_total",
				Help: "Order status updates, by new status",
			},
			[]string{"status"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_notifications_delivered_total",
				Help: "Websocket frames delivered, by scope",
			},
			[]string{"scope"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taboon_websocket_connections",
				Help: "Currently registered websocket connections",
			},
		),
		chatRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_chat_requests_total",
				Help: "Chat turns, by outcome",
			},
			[]string{"outcome"},
		),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_order_extractions_total",
				Help: "Order block extraction attempts, by result",
			},
			[]string{"result"},
		),
		llmLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taboon_llm_request_duration_seconds",
				Help:    "Latency of text-generation calls",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"provider"},
		),
		retentionDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taboon_retention_deleted_orders_total",
				Help: "Orders removed by retention, by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.ordersCreated,
		m.statusChanges,
		m.notifications,
		m.activeConnections,
		m.chatRequests,
		m.extractions,
		m.llmLatency,
		m.retentionDeleted,
	)
	return m
}

// Registry exposes the underlying registry for scraping and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated(source, orderType string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(source, orderType).Inc()
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) NotificationsDelivered(scope string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.notifications.WithLabelValues(scope).Add(float64(n))
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(n))
}

func (m *Metrics) ChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Extraction(result string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(result).Inc()
}

// ObserveLLM records how long a completion call took
func (m *Metrics) ObserveLLM(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RetentionDeleted(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionDeleted.WithLabelValues(reason).Add(float64(n))
}
