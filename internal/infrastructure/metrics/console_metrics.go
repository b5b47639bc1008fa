package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsoleMetrics contains Prometheus metrics for the console backend.
type ConsoleMetrics struct {
	UpstreamRequests        *prometheus.CounterVec
	UpstreamDuration        *prometheus.HistogramVec
	PermissionDecisions     *prometheus.CounterVec
	PageLoads               *prometheus.CounterVec
	ActiveNotifications     prometheus.Gauge
	WebSocketConnections    prometheus.Gauge
	NotificationEventsTotal *prometheus.CounterVec
}

// NewConsoleMetrics creates and registers console metrics with the given registerer.
func NewConsoleMetrics(registerer prometheus.Registerer) *ConsoleMetrics {
	m := &ConsoleMetrics{
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowctl_console_upstream_requests_total",
				Help: "Total number of requests sent to the flowctl API",
			},
			[]string{"resource", "status"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowctl_console_upstream_request_duration_seconds",
				Help:    "Latency of flowctl API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		PermissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowctl_console_permission_decisions_total",
				Help: "Permission check outcomes per resource type and action",
			},
			[]string{"resource", "action", "result"}, // result: allow/deny/error
		),
		PageLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowctl_console_page_loads_total",
				Help: "Page data loads by page and resulting status",
			},
			[]string{"page", "status"},
		),
		ActiveNotifications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowctl_console_active_notifications",
			Help: "Notifications currently held in memory across all users",
		}),
		WebSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowctl_console_websocket_connections",
			Help: "Open websocket connections",
		}),
		NotificationEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowctl_console_notification_events_total",
				Help: "Notification events fanned out to live sessions",
			},
			[]string{"type"},
		),
	}

	registerer.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.PermissionDecisions,
		m.PageLoads,
		m.ActiveNotifications,
		m.WebSocketConnections,
		m.NotificationEventsTotal,
	)

	return m
}

// ObserveUpstreamRequest records one flowctl API call. Status 0 means a transport failure.
func (m *ConsoleMetrics) ObserveUpstreamRequest(resource string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(resource, label).Inc()
	m.UpstreamDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// RecordPermissionDecision counts a single action decision.
func (m *ConsoleMetrics) RecordPermissionDecision(resource, action, result string) {
	m.PermissionDecisions.WithLabelValues(resource, action, result).Inc()
}

// RecordPageLoad counts a page load with its HTTP status.
func (m *ConsoleMetrics) RecordPageLoad(page string, status int) {
	m.PageLoads.WithLabelValues(page, strconv.Itoa(status)).Inc()
}

// AddActiveNotifications moves the in-memory notification gauge by delta.
func (m *ConsoleMetrics) AddActiveNotifications(delta int) {
	m.ActiveNotifications.Add(float64(delta))
}

// RecordNotificationEvent counts an event published to live sessions.
func (m *ConsoleMetrics) RecordNotificationEvent(eventType string) {
	m.NotificationEventsTotal.WithLabelValues(eventType).Inc()
}

// ConnectionOpened increments the websocket gauge.
func (m *ConsoleMetrics) ConnectionOpened() { m.WebSocketConnections.Inc() }

// ConnectionClosed decrements the websocket gauge.
func (m *ConsoleMetrics) ConnectionClosed() { m.WebSocketConnections.Dec() }
