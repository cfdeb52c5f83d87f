// Package observability exports store metrics through prometheus/client_golang.
// The console never serves HTTP, so metrics are written as a node-exporter
// textfile when the session ends.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "papila"

// PrometheusRecorder counts store operations by outcome and times them.
type PrometheusRecorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusRecorder builds a recorder on its own registry, labelled with
// the session id.
func NewPrometheusRecorder(session string) *PrometheusRecorder {
	constLabels := prometheus.Labels{}
	if session != "" {
		constLabels["session"] = session
	}
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "store_operations_total",
			Help:        "Store operations by name and result.",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "store_operation_duration_seconds",
			Help:        "Store operation latency, including the file rewrite.",
			Buckets:     []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			ConstLabels: constLabels,
		}, []string{"operation"}),
	}
	r.registry.MustRegister(r.operations, r.latency)
	return r
}

// Observe implements core.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// WriteTextfile atomically writes every metric to path in the text format.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
