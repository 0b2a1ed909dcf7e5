// Package middleware provides cross-cutting concerns for the evaluation
// engine: Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hiregauge/hiregauge/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// scoreBuckets covers the unit interval the engine's scores live in.
// LinearBuckets(0, 0.1, 11) yields 0.0, 0.1, ..., 1.0.
var scoreBuckets = prometheus.LinearBuckets(0, 0.1, 11)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It routes the orchestrator's well-known metric names to
// dedicated vectors so dashboards get stable series, and funnels
// everything else through generic fallbacks.
type PrometheusMetrics struct {
	registry prometheus.Registerer

	signalsSubmitted   *prometheus.CounterVec
	signalsDuplicate   *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationRetries  prometheus.Counter
	evaluationUnstable prometheus.Counter
	httpRequests       *prometheus.CounterVec
	operationCounter   *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	httpLatency      *prometheus.HistogramVec
	completeness     prometheus.Histogram
	compositeScore   prometheus.Histogram
	valueHistogram   *prometheus.HistogramVec

	systemGauges *prometheus.GaugeVec
}

// PrometheusOption configures a PrometheusMetrics instance.
type PrometheusOption func(*PrometheusMetrics)

// WithRegistry registers the metrics on a custom registry instead of
// the global default. Tests use this to avoid duplicate registration
// across instances.
func WithRegistry(registry prometheus.Registerer) PrometheusOption {
	return func(pm *PrometheusMetrics) {
		if registry != nil {
			pm.registry = registry
		}
	}
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and
// registers all metrics under the hiregauge namespace. Registering two
// instances on the same registry panics, so long-lived processes build
// exactly one.
func NewPrometheusMetrics(opts ...PrometheusOption) *PrometheusMetrics {
	pm := &PrometheusMetrics{registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(pm)
	}

	auto := promauto.With(pm.registry)

	pm.signalsSubmitted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "signals_submitted_total",
			Help:      "Total number of interview signals accepted into the store.",
		},
		[]string{"phase"},
	)
	pm.signalsDuplicate = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "signals_duplicate_total",
			Help:      "Total number of signal submissions dropped as exact duplicates.",
		},
		[]string{"phase"},
	)
	pm.evaluations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "evaluations_total",
			Help:      "Total number of evaluations computed, by resulting candidate state.",
		},
		[]string{"state"},
	)
	pm.evaluationRetries = auto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "evaluation_retries_total",
			Help:      "Total number of recomputations restarted because signals changed mid-flight.",
		},
	)
	pm.evaluationUnstable = auto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "evaluation_unstable_total",
			Help:      "Total number of evaluations abandoned after exhausting the retry limit.",
		},
	)
	pm.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code.",
		},
		[]string{"endpoint", "method", "status"},
	)
	pm.operationCounter = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hiregauge",
			Name:      "operations_total",
			Help:      "Total number of miscellaneous engine operations.",
		},
		[]string{"operation"},
	)

	pm.operationLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hiregauge",
			Name:      "operation_duration_seconds",
			Help:      "Execution time of engine operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "role"},
	)
	pm.httpLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hiregauge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request handling time by endpoint and method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
	pm.completeness = auto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hiregauge",
			Name:      "evaluation_completeness",
			Help:      "Distribution of evaluation completeness (phase-weight fraction backed by signal).",
			Buckets:   scoreBuckets,
		},
	)
	pm.compositeScore = auto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hiregauge",
			Name:      "composite_score",
			Help:      "Distribution of composite scores across computed evaluations.",
			Buckets:   scoreBuckets,
		},
	)
	pm.valueHistogram = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hiregauge",
			Name:      "value_distribution",
			Help:      "Distribution of miscellaneous engine values.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"metric"},
	)

	pm.systemGauges = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hiregauge",
			Name:      "system_state",
			Help:      "Current system state values for the evaluation engine.",
		},
		[]string{"metric"},
	)

	return pm
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram. The http_request
// operation carries endpoint and method labels; everything else is
// partitioned by role.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if operation == "http_request" {
		pm.httpLatency.
			WithLabelValues(labelOrUnknown(labels, "endpoint"), labelOrUnknown(labels, "method")).
			Observe(duration.Seconds())
		return
	}
	pm.operationLatency.
		WithLabelValues(operation, labelOrUnknown(labels, "role")).
		Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by
// incrementing the counter dedicated to the metric name, or a generic
// operations counter for names without one.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "signals_submitted_total":
		pm.signalsSubmitted.WithLabelValues(labelOrUnknown(labels, "phase")).Add(value)
	case "signals_duplicate_total":
		pm.signalsDuplicate.WithLabelValues(labelOrUnknown(labels, "phase")).Add(value)
	case "evaluations_total":
		pm.evaluations.WithLabelValues(labelOrUnknown(labels, "state")).Add(value)
	case "evaluation_retries_total":
		pm.evaluationRetries.Add(value)
	case "evaluation_unstable_total":
		pm.evaluationUnstable.Add(value)
	case "http_requests_total":
		pm.httpRequests.WithLabelValues(
			labelOrUnknown(labels, "endpoint"),
			labelOrUnknown(labels, "method"),
			labelOrUnknown(labels, "status"),
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting the
// named series on the shared system state gauge.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by
// observing the value on the histogram dedicated to the metric name,
// or a generic distribution for names without one.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "evaluation_completeness":
		pm.completeness.Observe(value)
	case "composite_score":
		pm.compositeScore.Observe(value)
	default:
		pm.valueHistogram.WithLabelValues(metric).Observe(value)
	}
}

// labelOrUnknown pulls a label value from the map, substituting
// "unknown" when the caller omitted it so series stay well-formed.
func labelOrUnknown(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}
