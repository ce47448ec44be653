// Package observability wires application metrics to a Prometheus exporter
// through the OpenTelemetry metrics SDK.
package observability

import (
	"context"
	"net/http"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the import pipeline's instruments.
type Metrics struct {
	meter metric.Meter

	ImportsQueued  metric.Int64Counter
	ImportsTotal   metric.Int64Counter
	ImportErrors   metric.Int64Counter
	ImportDuration metric.Float64Histogram

	QueriesTotal  metric.Int64Counter
	QueryDuration metric.Float64Histogram

	QueueDepth metric.Int64Gauge
}

// NewMetrics creates and registers all instruments with a Prometheus
// exporter, returning the handler to mount at /metrics.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("datastore")
	m := &Metrics{meter: meter}

	m.ImportsQueued, err = meter.Int64Counter(
		"datastore_imports_queued_total",
		metric.WithDescription("Imports accepted onto the deferred queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ImportsTotal, err = meter.Int64Counter(
		"datastore_imports_total",
		metric.WithDescription("Immediate-mode imports executed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ImportErrors, err = meter.Int64Counter(
		"datastore_import_errors_total",
		metric.WithDescription("Imports that finished with an error status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ImportDuration, err = meter.Float64Histogram(
		"datastore_import_duration_seconds",
		metric.WithDescription("Localize+import latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 60, 300, 900),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueriesTotal, err = meter.Int64Counter(
		"datastore_queries_total",
		metric.WithDescription("Datastore queries executed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram(
		"datastore_query_duration_seconds",
		metric.WithDescription("Query latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge(
		"datastore_queue_depth",
		metric.WithDescription("Unclaimed items on the import queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordImportQueued implements datastore.MetricsRecorder.
func (m *Metrics) RecordImportQueued(ctx context.Context) {
	m.ImportsQueued.Add(ctx, 1)
}

// RecordImport implements datastore.MetricsRecorder.
func (m *Metrics) RecordImport(ctx context.Context, status datastore.Status, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.ImportsTotal.Add(ctx, 1, attrs)
	m.ImportDuration.Record(ctx, durationSeconds, attrs)
	if status == datastore.StatusError {
		m.ImportErrors.Add(ctx, 1)
	}
}

// RecordQuery implements datastore.MetricsRecorder.
func (m *Metrics) RecordQuery(ctx context.Context, durationSeconds float64) {
	m.QueriesTotal.Add(ctx, 1)
	m.QueryDuration.Record(ctx, durationSeconds)
}

// RecordQueueDepth reports the current queue depth gauge.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int64) {
	m.QueueDepth.Record(ctx, depth)
}
