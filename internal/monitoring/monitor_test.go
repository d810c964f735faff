package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_GetMetrics(t *testing.T) {
	m := NewMonitor()
	m.RecordMetric("test_metric", 42)

	metrics := m.GetMetrics()

	value, exists := metrics["test_metric"]
	if !exists {
		t.Fatalf("Expected 'test_metric' to be present in metrics, but it was not")
	}
	if value != 42 {
		t.Errorf("Expected 'test_metric' to be 42, but got %v", value)
	}

	_, exists = metrics["uptime_seconds"]
	if !exists {
		t.Errorf("Expected 'uptime_seconds' to be present in metrics, but it was not")
	}
}

func TestMonitor_RecordEvent(t *testing.T) {
	m := NewMonitor()
	m.RecordEvent("daily_wipe")

	value, exists := m.GetMetric("daily_wipe_at")
	if !exists {
		t.Fatalf("Expected 'daily_wipe_at' to be recorded")
	}
	if _, err := time.Parse(time.RFC3339, value.(string)); err != nil {
		t.Errorf("Expected an RFC3339 timestamp, got %v", value)
	}
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()

	m.OrderCreated("ai_chat", "delivery")
	m.OrderCreated("ai_chat", "delivery")
	m.StatusChanged("ready")
	m.NotificationsDelivered("global", 3)
	m.NotificationsDelivered("order", 0)
	m.SetConnections(2)
	m.RetentionDeleted("wipe", 5)
	m.ObserveLLM("openai", 300*time.Millisecond)

	assert.Equal(t, 2.0, value(t, m.ordersCreated.WithLabelValues("ai_chat", "delivery")))
	assert.Equal(t, 1.0, value(t, m.statusChanges.WithLabelValues("ready")))
	assert.Equal(t, 3.0, value(t, m.notifications.WithLabelValues("global")))
	assert.Equal(t, 2.0, value(t, m.activeConnections))
	assert.Equal(t, 5.0, value(t, m.retentionDeleted.WithLabelValues("wipe")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated("manual", "dine_in")
		m.StatusChanged("new")
		m.NotificationsDelivered("order", 1)
		m.SetConnections(1)
		m.ChatRequest("reply")
		m.Extraction("none")
		m.ObserveLLM("azure", time.Second)
		m.RetentionDeleted("prune", 1)
	})
}
