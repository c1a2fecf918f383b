package metrics

import (
	"net/http"
	"time"
)

// Metrics interface for dependency injection
type Metrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordReserve(outcome string)
	RecordWebhookEvent(eventType, status string)
	RecordStoreOp(op, status string)
	SetDBConnectionsActive(count float64)
	Handler() http.Handler
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (m *NoOpMetrics) RecordReserve(outcome string)                {}
func (m *NoOpMetrics) RecordWebhookEvent(eventType, status string) {}
func (m *NoOpMetrics) RecordStoreOp(op, status string)             {}
func (m *NoOpMetrics) SetDBConnectionsActive(count float64)        {}
func (m *NoOpMetrics) Handler() http.Handler                       { return http.NotFoundHandler() }

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// Init initializes metrics (no-op for now, can be extended with Prometheus)
func Init() {
}

// Handler returns the metrics handler
func Handler() http.Handler {
	return globalMetrics.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	globalMetrics.RecordHTTPRequest(method, endpoint, statusCode, duration)
}

// RecordReserve records the outcome of a quota reservation
// (reserved, rejected, replayed)
func RecordReserve(outcome string) {
	globalMetrics.RecordReserve(outcome)
}

// RecordWebhookEvent records a processed billing event
func RecordWebhookEvent(eventType, status string) {
	globalMetrics.RecordWebhookEvent(eventType, status)
}

// RecordStoreOp records document store operation metrics
func RecordStoreOp(op, status string) {
	globalMetrics.RecordStoreOp(op, status)
}

// SetDBConnectionsActive sets the number of active database connections
func SetDBConnectionsActive(count float64) {
	globalMetrics.SetDBConnectionsActive(count)
}
