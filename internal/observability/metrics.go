package observability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace     = "outreach_engine"
	unknownLabel  = "unknown"
	unmatchedPath = "unmatched"
	scrapePath    = "/metrics"
)

// Metrics stores Prometheus collectors used by the API, pipeline and scheduler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	emailsSent    *prometheus.CounterVec
	emailsFailed  *prometheus.CounterVec
	sendLatency   *prometheus.HistogramVec
	taskOutcomes  *prometheus.CounterVec
	tasksRunning  *prometheus.GaugeVec
	taskRetries   *prometheus.CounterVec
	trackingHits  *prometheus.CounterVec
	throttledHits *prometheus.CounterVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		apiRequests: counter("api_requests_total",
			"API requests served, by method, route and response status.",
			"method", "route", "status"),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		emailsSent: counter("emails_sent_total",
			"Emails accepted by the transport, by provider preset.",
			"provider"),
		emailsFailed: counter("emails_failed_total",
			"Send attempts that did not reach the transport or were rejected, by reason.",
			"reason"),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "email_send_duration_seconds",
			Help:      "Transport send duration by provider preset.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),

		taskOutcomes: counter("tasks_processed_total",
			"Automation task executions by type and outcome.",
			"type", "outcome"),
		tasksRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Automation tasks currently executing, by type.",
		}, []string{"type"}),
		taskRetries: counter("task_retries_total",
			"Automation tasks put back to pending for another attempt.",
			"type"),

		trackingHits: counter("tracking_events_total",
			"Open, click and unsubscribe hits by result (recorded, duplicate, skipped, error).",
			"event", "result"),
		throttledHits: counter("rate_limited_total",
			"Requests that exceeded the per-caller rate limit, by route group.",
			"scope"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency,
		m.emailsSent, m.emailsFailed, m.sendLatency,
		m.taskOutcomes, m.tasksRunning, m.taskRetries,
		m.trackingHits, m.throttledHits,
	)
	return m
}

// Handler serves the private registry, or the default one for a nil receiver.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware counts every request except scrapes of the metrics endpoint.
func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		if m == nil {
			return err
		}

		method, route := requestLabels(c)
		if route == scrapePath {
			return err
		}
		m.apiRequests.WithLabelValues(method, route, strconv.Itoa(responseStatus(c, err))).Inc()
		m.apiLatency.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
		return err
	}
}

func (m *Metrics) IncEmailSent(provider string) {
	if m != nil {
		m.emailsSent.WithLabelValues(label(provider)).Inc()
	}
}

func (m *Metrics) IncEmailFailed(reason string) {
	if m != nil {
		m.emailsFailed.WithLabelValues(label(reason)).Inc()
	}
}

func (m *Metrics) ObserveEmailSendDuration(provider string, d time.Duration) {
	if m != nil {
		m.sendLatency.WithLabelValues(label(provider)).Observe(max(d.Seconds(), 0))
	}
}

func (m *Metrics) IncTaskProcessed(taskType string, outcome string) {
	if m != nil {
		m.taskOutcomes.WithLabelValues(label(taskType), label(outcome)).Inc()
	}
}

// TaskStarted marks a task of the given type as running and returns the
// function that clears it.
func (m *Metrics) TaskStarted(taskType string) (done func()) {
	if m == nil {
		return func() {}
	}
	gauge := m.tasksRunning.WithLabelValues(label(taskType))
	gauge.Inc()
	return gauge.Dec
}

func (m *Metrics) IncTaskRetry(taskType string) {
	if m != nil {
		m.taskRetries.WithLabelValues(label(taskType)).Inc()
	}
}

func (m *Metrics) IncTrackingEvent(event string, result string) {
	if m != nil {
		m.trackingHits.WithLabelValues(label(event), label(result)).Inc()
	}
}

func (m *Metrics) IncRateLimited(scope string) {
	if m != nil {
		m.throttledHits.WithLabelValues(label(scope)).Inc()
	}
}

// requestLabels reports the registered route pattern, never the raw path.
func requestLabels(c *fiber.Ctx) (method string, route string) {
	method = strings.ToUpper(strings.TrimSpace(c.Method()))
	if method == "" {
		method = strings.ToUpper(unknownLabel)
	}

	route = unmatchedPath
	if r := c.Route(); r != nil && strings.TrimSpace(r.Path) != "" {
		route = strings.TrimSpace(r.Path)
	}
	return method, route
}

func responseStatus(c *fiber.Ctx, err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case err != nil:
		return fiber.StatusInternalServerError
	}

	if status := c.Response().StatusCode(); status != 0 {
		return status
	}
	return fiber.StatusOK
}

func label(value string) string {
	if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
		return v
	}
	return unknownLabel
}
