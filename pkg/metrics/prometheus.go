package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database Metrics
	dbQueryDuration    *prometheus.HistogramVec
	dbQueryErrorsTotal *prometheus.CounterVec

	// Mailbox Metrics
	mailboxWritesTotal     *prometheus.CounterVec
	mailboxSubscribers     prometheus.Gauge
	mailboxSnapshotsTotal  *prometheus.CounterVec
	mailboxPublishErrors   prometheus.Counter
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call Metrics
	callsJoinedTotal    *prometheus.CounterVec
	callsCompletedTotal prometheus.Counter
	statusChangesTotal  *prometheus.CounterVec

	// Assist Metrics
	assistRequestsTotal *prometheus.CounterVec
	assistDuration      *prometheus.HistogramVec
	circuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics on reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "db_query_duration_seconds",
				Help:        "Database query latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		dbQueryErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "db_query_errors_total",
				Help:        "Total number of database query errors",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),

		mailboxWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "mailbox_writes_total",
				Help:        "Signaling mailbox writes by field",
				ConstLabels: labels,
			},
			[]string{"field"},
		),
		mailboxSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "mailbox_subscribers",
				Help:        "Active mailbox change-feed subscriptions",
				ConstLabels: labels,
			},
		),
		mailboxSnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "mailbox_snapshots_total",
				Help:        "Mailbox snapshots published by transport",
				ConstLabels: labels,
			},
			[]string{"transport"},
		),
		mailboxPublishErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "mailbox_publish_errors_total",
				Help:        "Failed mailbox snapshot publications",
				ConstLabels: labels,
			},
		),
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),

		callsJoinedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_joined_total",
				Help:        "Session loader joins by role",
				ConstLabels: labels,
			},
			[]string{"role"},
		),
		callsCompletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "calls_completed_total",
				Help:        "Appointments marked completed by call teardown",
				ConstLabels: labels,
			},
		),
		statusChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "appointment_status_changes_total",
				Help:        "Appointment status transitions",
				ConstLabels: labels,
			},
			[]string{"from", "to"},
		),

		assistRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "assist_requests_total",
				Help:        "AI assistance requests by category and fallback",
				ConstLabels: labels,
			},
			[]string{"category", "fallback"},
		),
		assistDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "assist_request_duration_seconds",
				Help:        "AI assistance latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"category"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "circuit_breaker_state",
				Help:        "Circuit breaker state (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			},
			[]string{"breaker"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.httpRequestsInFlight.Inc()
	}
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.httpRequestsInFlight.Dec()
	}
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.dbQueryErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordMailboxWrite counts a write to the offer or answer field, or a clear
func (m *Metrics) RecordMailboxWrite(field string) {
	if m != nil {
		m.mailboxWritesTotal.WithLabelValues(field).Inc()
	}
}

// AddMailboxSubscribers adjusts the subscription gauge by delta
func (m *Metrics) AddMailboxSubscribers(delta int) {
	if m != nil {
		m.mailboxSubscribers.Add(float64(delta))
	}
}

// RecordSnapshotPublished counts a published snapshot
func (m *Metrics) RecordSnapshotPublished(transport string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.mailboxPublishErrors.Inc()
		return
	}
	m.mailboxSnapshotsTotal.WithLabelValues(transport).Inc()
}

// AddWebSocketConnections adjusts the connection gauge by delta
func (m *Metrics) AddWebSocketConnections(delta int) {
	if m != nil {
		m.websocketConnections.Add(float64(delta))
	}
}

// RecordWebSocketMessage records a WebSocket message, direction is "in" or "out"
func (m *Metrics) RecordWebSocketMessage(direction string) {
	if m != nil {
		m.websocketMessagesTotal.WithLabelValues(direction).Inc()
	}
}

// RecordCallJoined records a successful session load
func (m *Metrics) RecordCallJoined(role string) {
	if m != nil {
		m.callsJoinedTotal.WithLabelValues(role).Inc()
	}
}

// RecordCallCompleted records an appointment completed by call teardown
func (m *Metrics) RecordCallCompleted() {
	if m != nil {
		m.callsCompletedTotal.Inc()
	}
}

// RecordStatusChange records an appointment status transition
func (m *Metrics) RecordStatusChange(from, to string) {
	if m != nil {
		m.statusChangesTotal.WithLabelValues(from, to).Inc()
	}
}

// RecordAssist records an AI assistance request
func (m *Metrics) RecordAssist(category string, fallback bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.assistRequestsTotal.WithLabelValues(category, strconv.FormatBool(fallback)).Inc()
	m.assistDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// SetCircuitBreakerState records the state of a named breaker
func (m *Metrics) SetCircuitBreakerState(breaker string, value float64) {
	if m != nil {
		m.circuitBreakerState.WithLabelValues(breaker).Set(value)
	}
}
