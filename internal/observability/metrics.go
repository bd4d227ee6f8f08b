package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for officefn. Every instance owns its
// registry, so several pipelines (and tests) can coexist in one process.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Regeneration metrics
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	stepFailuresTotal *prometheus.CounterVec
	triggersTotal     *prometheus.CounterVec

	// Artifact metrics
	artifactBytes      *prometheus.GaugeVec
	artifactGeneration *prometheus.GaugeVec
	artifactRequests   *prometheus.CounterVec

	// Live-update metrics
	liveConnections prometheus.Gauge
	liveBroadcasts  *prometheus.CounterVec

	// Emission metrics
	emitsTotal   *prometheus.CounterVec
	emitBytes    *prometheus.CounterVec
	emitDuration *prometheus.HistogramVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_http_requests_total",
				Help: "Total number of HTTP requests served by the dev server",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "officefn_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "officefn_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_cycles_total",
				Help: "Total number of regeneration cycles",
			},
			[]string{"mode", "outcome"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "officefn_cycle_duration_seconds",
				Help:    "Regeneration cycle duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "officefn_step_duration_seconds",
				Help:    "Duration of the extract and bundle steps in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),
		stepFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_step_failures_total",
				Help: "Total number of failed extract and bundle steps",
			},
			[]string{"step"},
		),
		triggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_triggers_total",
				Help: "Regeneration requests by how they were handled (started, queued, coalesced)",
			},
			[]string{"result"},
		),

		artifactBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "officefn_artifact_bytes",
				Help: "Size of the current artifact content in bytes",
			},
			[]string{"artifact"},
		),
		artifactGeneration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "officefn_artifact_generation",
				Help: "Generation counter of the current artifact",
			},
			[]string{"artifact"},
		),
		artifactRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_artifact_requests_total",
				Help: "Artifact requests served by the dev server",
			},
			[]string{"artifact", "status"},
		),

		liveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "officefn_live_connections",
				Help: "Current number of live-update websocket connections",
			},
		),
		liveBroadcasts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_live_broadcasts_total",
				Help: "Live-update messages broadcast, by message type",
			},
			[]string{"type"},
		),

		emitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_emits_total",
				Help: "Artifacts emitted by static builds",
			},
			[]string{"sink", "artifact", "status"},
		),
		emitBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "officefn_emit_bytes_total",
				Help: "Bytes emitted by static builds",
			},
			[]string{"sink", "artifact"},
		),
		emitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "officefn_emit_duration_seconds",
				Help:    "Artifact emission latency in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"sink"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "officefn_uptime_seconds",
				Help: "Dev server uptime in seconds",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordCycle records a finished regeneration cycle. outcome is "success",
// "partial" (one half failed) or "failure".
func (m *Metrics) RecordCycle(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(mode, outcome).Inc()
	m.cycleDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStep records one extract or bundle step
func (m *Metrics) RecordStep(step string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
	if failed {
		m.stepFailuresTotal.WithLabelValues(step).Inc()
	}
}

// RecordTrigger records how a regeneration request was handled
func (m *Metrics) RecordTrigger(result string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(result).Inc()
}

// UpdateArtifact updates the size and generation gauges of one artifact
func (m *Metrics) UpdateArtifact(artifact string, bytes int, generation uint64) {
	if m == nil {
		return
	}
	m.artifactBytes.WithLabelValues(artifact).Set(float64(bytes))
	m.artifactGeneration.WithLabelValues(artifact).Set(float64(generation))
}

// RecordArtifactRequest records an artifact request served by the dev server
func (m *Metrics) RecordArtifactRequest(artifact string, status int) {
	if m == nil {
		return
	}
	m.artifactRequests.WithLabelValues(artifact, statusClass(status)).Inc()
}

// UpdateLiveConnections updates the live-update connection gauge
func (m *Metrics) UpdateLiveConnections(connections int) {
	if m == nil {
		return
	}
	m.liveConnections.Set(float64(connections))
}

// RecordLiveBroadcast records a broadcast live-update message
func (m *Metrics) RecordLiveBroadcast(messageType string) {
	if m == nil {
		return
	}
	m.liveBroadcasts.WithLabelValues(messageType).Inc()
}

// RecordEmit records an artifact emission through a sink
func (m *Metrics) RecordEmit(sink, artifact string, bytes int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.emitsTotal.WithLabelValues(sink, artifact, status).Inc()
	m.emitBytes.WithLabelValues(sink, artifact).Add(float64(bytes))
	m.emitDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes this instance's metrics
func (m *Metrics) Handler() fiber.Handler {
	if m == nil {
		return func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNotFound)
		}
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// normalizePath bounds the cardinality of the path label
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
