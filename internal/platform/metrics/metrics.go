package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live-view relay.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	framesTotal        prometheus.Counter
	segmentsTotal      prometheus.Counter
	sessionsStarted    prometheus.Counter
	sessionsStopped    prometheus.Counter
	sessionsEvicted    prometheus.Counter
	notificationsSent  prometheus.Counter
	notificationErrors prometheus.Counter
	activeLiveSessions prometheus.Gauge
	activeHLSSessions  prometheus.Gauge
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_uploaded_total",
			Help: "Total number of live-view frames accepted",
		}),
		segmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_segments_uploaded_total",
			Help: "Total number of HLS segments accepted",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_started_total",
			Help: "Total number of sessions created",
		}),
		sessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_stopped_total",
			Help: "Total number of sessions explicitly stopped",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_evicted_total",
			Help: "Total number of sessions removed by the eviction sweep",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_notifications_sent_total",
			Help: "Total number of push notifications delivered",
		}),
		notificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_notification_failures_total",
			Help: "Total number of push notification delivery failures",
		}),
		activeLiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_live_sessions",
			Help: "Number of live frame sessions that are not stopped",
		}),
		activeHLSSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_hls_sessions",
			Help: "Number of HLS sessions that are not stopped",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.framesTotal,
		m.segmentsTotal,
		m.sessionsStarted,
		m.sessionsStopped,
		m.sessionsEvicted,
		m.notificationsSent,
		m.notificationErrors,
		m.activeLiveSessions,
		m.activeHLSSessions,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncFrames increments the frames uploaded counter.
func (m *Metrics) IncFrames() { m.framesTotal.Inc() }

// IncSegments increments the segments uploaded counter.
func (m *Metrics) IncSegments() { m.segmentsTotal.Inc() }

// IncSessionsStarted increments the sessions started counter.
func (m *Metrics) IncSessionsStarted() { m.sessionsStarted.Inc() }

// IncSessionsStopped increments the sessions stopped counter.
func (m *Metrics) IncSessionsStopped() { m.sessionsStopped.Inc() }

// AddSessionsEvicted adds n to the eviction counter.
func (m *Metrics) AddSessionsEvicted(n int) { m.sessionsEvicted.Add(float64(n)) }

// IncNotificationsSent increments the notifications delivered counter.
func (m *Metrics) IncNotificationsSent() { m.notificationsSent.Inc() }

// IncNotificationFailures increments the delivery failure counter.
func (m *Metrics) IncNotificationFailures() { m.notificationErrors.Inc() }

// SetActiveLiveSessions sets the active live session gauge.
func (m *Metrics) SetActiveLiveSessions(n int) { m.activeLiveSessions.Set(float64(n)) }

// SetActiveHLSSessions sets the active HLS session gauge.
func (m *Metrics) SetActiveHLSSessions(n int) { m.activeHLSSessions.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active session counts).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
