package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers. A nil *Telemetry
// is valid and records nothing.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Runtime
	memoryUsage    metric.Int64Gauge
	goroutineCount metric.Int64Gauge
	systemUptime   metric.Float64Gauge

	// Cart status
	storageOperationsTotal   metric.Int64Counter
	storageOperationDuration metric.Float64Histogram
	commitsTotal             metric.Int64Counter
	restoresTotal            metric.Int64Counter
	changeEventsTotal        metric.Int64Counter
	completionsTotal         metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // Optional gRPC collector that also receives metrics
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		)),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)

	otel.SetMeterProvider(meterProvider)

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectRuntimeMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil {
		return nil
	}

	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordStorageOperation records a call into a storage area.
func (t *Telemetry) RecordStorageOperation(area, operation, status string, duration time.Duration) {
	if t == nil || t.storageOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("area", area),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.storageOperationsTotal.Add(context.Background(), 1, attrs)
	t.storageOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordCommit records a status table commit by action tag.
func (t *Telemetry) RecordCommit(action, status string) {
	if t == nil || t.commitsTotal == nil {
		return
	}

	t.commitsTotal.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordRestore records a reload of a status table from its storage area.
func (t *Telemetry) RecordRestore(status string) {
	if t == nil || t.restoresTotal == nil {
		return
	}

	t.restoresTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordChangeEvent records a change notification and what was done with it
// ("applied", "ignored" or "failed").
func (t *Telemetry) RecordChangeEvent(area, outcome string) {
	if t == nil || t.changeEventsTotal == nil {
		return
	}

	t.changeEventsTotal.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("area", area),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCompletions records items newly observed as completely downloaded.
func (t *Telemetry) RecordCompletions(count int) {
	if t == nil || t.completionsTotal == nil || count == 0 {
		return
	}

	t.completionsTotal.Add(context.Background(), int64(count))
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeRuntimeMetrics(); err != nil {
		return err
	}

	return t.initializeCartMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeRuntimeMetrics() error {
	var err error

	t.memoryUsage, err = t.meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Memory usage in bytes"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory_usage gauge: %w", err)
	}

	t.goroutineCount, err = t.meter.Int64Gauge(
		"goroutine_count",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create goroutine_count gauge: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeCartMetrics() error {
	var err error

	t.storageOperationsTotal, err = t.meter.Int64Counter(
		"storage_operations_total",
		metric.WithDescription("Total number of storage area operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage_operations_total counter: %w", err)
	}

	t.storageOperationDuration, err = t.meter.Float64Histogram(
		"storage_operation_duration_seconds",
		metric.WithDescription("Storage area operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage_operation_duration histogram: %w", err)
	}

	t.commitsTotal, err = t.meter.Int64Counter(
		"cart_status_commits_total",
		metric.WithDescription("Total number of cart status commits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cart_status_commits_total counter: %w", err)
	}

	t.restoresTotal, err = t.meter.Int64Counter(
		"cart_status_restores_total",
		metric.WithDescription("Total number of cart status reloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cart_status_restores_total counter: %w", err)
	}

	t.changeEventsTotal, err = t.meter.Int64Counter(
		"storage_change_events_total",
		metric.WithDescription("Total number of storage change notifications received"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage_change_events_total counter: %w", err)
	}

	t.completionsTotal, err = t.meter.Int64Counter(
		"downloads_completed_total",
		metric.WithDescription("Total number of items observed as completely downloaded"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_completed_total counter: %w", err)
	}

	return nil
}

// collectRuntimeMetrics collects runtime metrics periodically.
func (t *Telemetry) collectRuntimeMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats

			runtime.ReadMemStats(&m)

			t.memoryUsage.Record(context.Background(), int64(m.Alloc))
			t.goroutineCount.Record(context.Background(), int64(runtime.NumGoroutine()))
			t.systemUptime.Record(context.Background(), time.Since(startTime).Seconds())
		}
	}
}
