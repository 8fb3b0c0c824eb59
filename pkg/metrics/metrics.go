package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	alertsCreatedTotal  *prometheus.CounterVec
	alertsResolvedTotal *prometheus.CounterVec
	escalationsTotal    prometheus.Counter
	notificationsTotal  *prometheus.CounterVec
	respondersTotal     *prometheus.CounterVec
	activeAlerts        prometheus.Gauge

	geoQueryDuration prometheus.Histogram
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		alertsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_alerts_created_total",
				Help: "SOS alerts created",
			},
			[]string{"type", "urgency"},
		),
		alertsResolvedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_alerts_resolved_total",
				Help: "SOS alerts resolved, by terminal status",
			},
			[]string{"status"},
		),
		escalationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sos_escalations_total",
				Help: "Escalation steps applied to active alerts",
			},
		),
		notificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_notifications_total",
				Help: "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		respondersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_responders_total",
				Help: "Responder status updates",
			},
			[]string{"status"},
		),
		activeAlerts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sos_active_alerts",
				Help: "Currently active SOS alerts",
			},
		),
		geoQueryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sos_geo_query_duration_seconds",
				Help:    "Nearby-user query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) AlertCreated(alertType, urgency string) {
	m.alertsCreatedTotal.WithLabelValues(alertType, urgency).Inc()
	m.activeAlerts.Inc()
}

func (m *Metrics) AlertResolved(status string) {
	m.alertsResolvedTotal.WithLabelValues(status).Inc()
	m.activeAlerts.Dec()
}

func (m *Metrics) Escalated() { m.escalationsTotal.Inc() }

func (m *Metrics) NotificationSent(channel string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ResponderUpdate(status string) {
	m.respondersTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveGeoQuery(d time.Duration) {
	m.geoQueryDuration.Observe(d.Seconds())
}
