package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/llmcompare/internal/config"
)

const instrumentationName = "ongoingai.llmcompare"

// Metric names.
const (
	MetricSpansFetched     = "llmcompare.spans.fetched_total"
	MetricGroupsDetected   = "llmcompare.groups.detected_total"
	MetricCritiqueTokens   = "llmcompare.critique.tokens_total"
	MetricCritiqueFailures = "llmcompare.critique.failures_total"
)

// Runtime carries the analyzer's tracer and counters. A nil or disabled
// Runtime is valid and turns every hook into a no-op.
type Runtime struct {
	enabled        bool
	tracer         oteltrace.Tracer
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider

	spansFetched     metric.Int64Counter
	groupsDetected   metric.Int64Counter
	critiqueTokens   metric.Int64Counter
	critiqueFailures metric.Int64Counter

	shutdownFns []func(context.Context) error
}

// Setup initializes OpenTelemetry providers and runtime hooks.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	exportTimeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	metricInterval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond
	otlpEndpoint, inferredInsecure, err := normalizeOTLPEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	insecure := cfg.Insecure
	if strings.Contains(strings.TrimSpace(cfg.Endpoint), "://") {
		// An explicit scheme wins over the insecure toggle.
		insecure = inferredInsecure
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)

	var tracerProvider oteltrace.TracerProvider
	var meterProvider metric.MeterProvider

	if cfg.TracesEnabled {
		traceExporterOptions := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithTimeout(exportTimeout),
		}
		if insecure {
			traceExporterOptions = append(traceExporterOptions, otlptracehttp.WithInsecure())
		}
		traceExporter, err := otlptracehttp.New(ctx, traceExporterOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
		}

		sdkTracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
			sdktrace.WithBatcher(newScrubbingExporter(traceExporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(sdkTracerProvider)
		tracerProvider = sdkTracerProvider
		runtime.shutdownFns = append(runtime.shutdownFns, sdkTracerProvider.Shutdown)
	}

	if cfg.MetricsEnabled {
		metricExporterOptions := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithTimeout(exportTimeout),
		}
		if insecure {
			metricExporterOptions = append(metricExporterOptions, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, metricExporterOptions...)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
		}

		reader := sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout),
		)
		sdkMeterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(sdkMeterProvider)
		meterProvider = sdkMeterProvider
		runtime.shutdownFns = append(runtime.shutdownFns, sdkMeterProvider.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	runtime.instrument(tracerProvider, meterProvider, logger)

	if logger != nil {
		logger.Info(
			"opentelemetry enabled",
			"otel_endpoint", otlpEndpoint,
			"otel_traces_enabled", cfg.TracesEnabled,
			"otel_metrics_enabled", cfg.MetricsEnabled,
			"otel_sampling_ratio", cfg.SamplingRatio,
		)
	}

	return runtime, nil
}

// NewRuntime builds an enabled Runtime over caller-supplied providers.
func NewRuntime(tracerProvider oteltrace.TracerProvider, meterProvider metric.MeterProvider, logger *slog.Logger) *Runtime {
	runtime := &Runtime{}
	runtime.instrument(tracerProvider, meterProvider, logger)
	return runtime
}

func (r *Runtime) instrument(tracerProvider oteltrace.TracerProvider, meterProvider metric.MeterProvider, logger *slog.Logger) {
	r.tracerProvider = tracerProvider
	r.meterProvider = meterProvider
	r.tracer = tracerProvider.Tracer(instrumentationName)
	meter := meterProvider.Meter(instrumentationName)

	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil && logger != nil {
			logger.Warn("failed to create opentelemetry counter", "metric", name, "error", err)
		}
		return c
	}
	r.spansFetched = counter(MetricSpansFetched, "Count of raw spans fetched from the trace source.")
	r.groupsDetected = counter(MetricGroupsDetected, "Count of comparison groups detected.")
	r.critiqueTokens = counter(MetricCritiqueTokens, "Tokens consumed by critique requests.")
	r.critiqueFailures = counter(MetricCritiqueFailures, "Count of critique requests that produced no critique.")
	r.enabled = true
}

// Enabled reports whether OpenTelemetry instrumentation is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// StartStage opens a span for one pipeline stage. The returned func ends the
// span and marks it failed when err is non-nil.
func (r *Runtime) StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if !r.Enabled() || r.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := r.tracer.Start(ctx, "llmcompare."+stage, oteltrace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ScrubCredentials(err.Error()))
		}
		span.End()
	}
}

// WrapHTTPTransport wraps an outbound HTTP transport with OpenTelemetry spans.
func (r *Runtime) WrapHTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !r.Enabled() {
		return base
	}
	return otelhttp.NewTransport(
		base,
		otelhttp.WithTracerProvider(r.tracerProvider),
		otelhttp.WithMeterProvider(r.meterProvider),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return clientSpanName(req.Method, req.URL)
		}),
	)
}

// HTTPClient returns a client whose transport is wrapped by WrapHTTPTransport.
func (r *Runtime) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: r.WrapHTTPTransport(nil)}
}

func (r *Runtime) RecordSpansFetched(ctx context.Context, source, project string, count int) {
	if !r.Enabled() || count <= 0 || r.spansFetched == nil {
		return
	}
	r.spansFetched.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("project", project),
	))
}

func (r *Runtime) RecordGroupsDetected(ctx context.Context, count int) {
	if !r.Enabled() || count <= 0 || r.groupsDetected == nil {
		return
	}
	r.groupsDetected.Add(ctx, int64(count))
}

func (r *Runtime) RecordCritiqueTokens(ctx context.Context, model string, tokens int64) {
	if !r.Enabled() || tokens <= 0 || r.critiqueTokens == nil {
		return
	}
	r.critiqueTokens.Add(ctx, tokens, metric.WithAttributes(attribute.String("model", model)))
}

func (r *Runtime) RecordCritiqueFailure(ctx context.Context, reason string) {
	if !r.Enabled() || r.critiqueFailures == nil {
		return
	}
	r.critiqueFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", strings.TrimSpace(reason))))
}

// Shutdown flushes and stops OpenTelemetry providers.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || len(r.shutdownFns) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i := len(r.shutdownFns) - 1; i >= 0; i-- {
		if err := r.shutdownFns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func normalizeOTLPEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, errors.New("observability.otel.endpoint must not be empty")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse observability.otel.endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", false, fmt.Errorf("observability.otel.endpoint must include host (got %q)", raw)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return parsed.Host, true, nil
	case "https":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("observability.otel.endpoint scheme must be http or https when provided (got %q)", parsed.Scheme)
	}
}

// Client span names use the host only; project names in paths would make
// span names unbounded.
func clientSpanName(method string, target *url.URL) string {
	method = strings.TrimSpace(method)
	if method == "" {
		method = "UNKNOWN"
	}
	host := "unknown"
	if target != nil && strings.TrimSpace(target.Host) != "" {
		host = target.Host
	}
	return "llmcompare " + method + " " + host
}
