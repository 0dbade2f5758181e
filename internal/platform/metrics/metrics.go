package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request counter
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepulse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP request duration histogram
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carepulse_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// Pipeline run counter by terminal status (completed, partial, failed)
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepulse_pipeline_runs_total",
			Help: "Total number of vitals pipeline runs",
		},
		[]string{"status"},
	)

	// Pipeline run duration histogram
	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carepulse_pipeline_run_duration_seconds",
			Help:    "Duration of vitals pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alert creation counter by severity and kind
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepulse_alerts_created_total",
			Help: "Total number of alerts created or upgraded",
		},
		[]string{"severity", "type"},
	)

	// Currently open alerts gauge
	AlertsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carepulse_alerts_open",
			Help: "Number of alerts currently in the open state",
		},
	)

	// Risk score computation counter by risk type and level
	RiskScoresComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepulse_risk_scores_computed_total",
			Help: "Total number of risk scores computed",
		},
		[]string{"risk_type", "level"},
	)

	// Upstream collaborator calls (ocr, chat) by outcome (ok, error, timeout)
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepulse_upstream_requests_total",
			Help: "Total number of upstream collaborator requests",
		},
		[]string{"service", "outcome"},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)

	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordPipelineRun records a pipeline run outcome and duration.
func RecordPipelineRun(status string, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}

// RecordAlertCreated records an alert creation or severity upgrade.
func RecordAlertCreated(severity, alertType string) {
	AlertsCreatedTotal.WithLabelValues(severity, alertType).Inc()
}

// RecordRiskScore records a computed risk score.
func RecordRiskScore(riskType, level string) {
	RiskScoresComputedTotal.WithLabelValues(riskType, level).Inc()
}

// RecordUpstreamRequest records a call to an external collaborator.
func RecordUpstreamRequest(service, outcome string) {
	UpstreamRequestsTotal.WithLabelValues(service, outcome).Inc()
}

// Middleware returns echo middleware that records request counts and
// latencies. The registered route path is used as the endpoint label so
// that path parameters do not explode the label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = c.Request().URL.Path
			}
			RecordHTTPRequest(c.Request().Method, endpoint, c.Response().Status, time.Since(start))

			return err
		}
	}
}

// Handler returns the Prometheus exposition endpoint.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
