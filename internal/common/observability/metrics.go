// Package observability wires OpenTelemetry metrics (exported through Prometheus) and tracing.
package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	jobCounter       otelmetric.Int64Counter
	jobDuration      otelmetric.Float64Histogram
	decisionCounter  otelmetric.Int64Counter
	decisionDuration otelmetric.Float64Histogram
}

type options struct {
	registerer    promclient.Registerer
	spanProcessor sdktrace.SpanProcessor
	setGlobal     bool
}

type Option func(*options)

// WithRegisterer exports metrics into reg instead of the default Prometheus registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSpanProcessor attaches a span processor (an exporter pipeline, or a recorder in tests).
// Without one, spans are created and propagated in process but never exported.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessor = sp }
}

// WithoutGlobal leaves the otel global providers untouched.
func WithoutGlobal() Option {
	return func(o *options) { o.setGlobal = false }
}

func New(serviceName string, opts ...Option) *Observability {
	o := options{registerer: promclient.DefaultRegisterer, setGlobal: true}
	for _, opt := range opts {
		opt(&o)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample()))}
	if o.spanProcessor != nil {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(o.spanProcessor))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)

	exporter, err := prometheus.New(prometheus.WithRegisterer(o.registerer))
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		obs := NewNop()
		obs.tracerProvider = tracerProvider
		obs.tracer = tracerProvider.Tracer(serviceName)
		return obs
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	if o.setGlobal {
		otel.SetMeterProvider(provider)
		otel.SetTracerProvider(tracerProvider)
	}

	obs := &Observability{
		meterProvider:  provider,
		tracerProvider: tracerProvider,
		meter:          provider.Meter(serviceName),
		tracer:         tracerProvider.Tracer(serviceName),
	}
	obs.initInstruments()
	return obs
}

// NewNop returns an Observability that records nothing.
func NewNop() *Observability {
	obs := &Observability{
		meter:  metricnoop.NewMeterProvider().Meter("nop"),
		tracer: tracenoop.NewTracerProvider().Tracer("nop"),
	}
	obs.initInstruments()
	return obs
}

func (o *Observability) initInstruments() {
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	o.decisionCounter, _ = o.meter.Int64Counter(
		"entitlement.decisions",
		otelmetric.WithDescription("Number of entitlement decisions"),
	)

	o.decisionDuration, _ = o.meter.Float64Histogram(
		"entitlement.duration",
		otelmetric.WithDescription("Entitlement check duration"),
		otelmetric.WithUnit("ms"),
	)
}

// StartSpan starts a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

// RecordDecision records one entitlement decision for path ("subscription", "credits").
func (o *Observability) RecordDecision(ctx context.Context, path, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("path", path),
		attribute.String("status", status),
	)
	if o.decisionCounter != nil {
		o.decisionCounter.Add(ctx, 1, attrs)
	}
	if o.decisionDuration != nil {
		o.decisionDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
