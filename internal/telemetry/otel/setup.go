// Package otel wires the session engine into OpenTelemetry: OTLP-exporting
// trace, metric and log providers, and the session event emitter built on OTel logs.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	metricapi "go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// instrumentationName names the tracer and meter used by the session engine.
	instrumentationName = "seshlock"
	// metricInterval is how often session counters are pushed to the collector.
	metricInterval = 10 * time.Second
)

// Providers bundles the session telemetry providers. Shutdown flushes and
// stops them in reverse order of creation.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// collector is the resolved OTLP gRPC target.
type collector struct {
	host     string
	insecure bool
}

// parseCollector accepts host:port or a URL. Any path is dropped; only the
// host is dialled. Plain http and bare host:port dial without TLS, as does
// any endpoint when forceInsecure is set.
func parseCollector(endpoint string, forceInsecure bool) (collector, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("otlp endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("otlp endpoint %q: missing host", endpoint)
	}
	return collector{host: u.Host, insecure: forceInsecure || u.Scheme != "https"}, nil
}

// shutdownStack runs registered shutdown funcs last-in first-out.
type shutdownStack []func(context.Context) error

func (s *shutdownStack) push(fn func(context.Context) error) { *s = append(*s, fn) }

func (s shutdownStack) run(ctx context.Context) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewProviders builds providers exporting to the OTLP collector at endpoint.
// An empty endpoint yields SDK providers with no exporters and a no-op Shutdown,
// so the engine can be instrumented unconditionally.
func NewProviders(ctx context.Context, endpoint, serviceName string, insecureOverride bool) (*Providers, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	c, err := parseCollector(endpoint, insecureOverride)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var stack shutdownStack
	fail := func(what string, err error) (*Providers, error) {
		_ = stack.run(ctx)
		return nil, fmt.Errorf("otlp %s exporter: %w", what, err)
	}

	tp, err := c.tracerProvider(ctx, res)
	if err != nil {
		return fail("trace", err)
	}
	stack.push(tp.Shutdown)

	mp, err := c.meterProvider(ctx, res)
	if err != nil {
		return fail("metric", err)
	}
	stack.push(mp.Shutdown)

	lp, err := c.loggerProvider(ctx, res)
	if err != nil {
		return fail("log", err)
	}
	stack.push(lp.Shutdown)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Shutdown:       stack.run,
	}, nil
}

func (c collector) tracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

func (c collector) meterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	reader := metric.NewPeriodicReader(exp, metric.WithInterval(metricInterval))
	return metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)), nil
}

func (c collector) loggerProvider(ctx context.Context, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)), sdklog.WithResource(res)), nil
}

// Tracer returns the tracer for session spans.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(instrumentationName)
}

// Meter returns the meter for session counters.
func (p *Providers) Meter() metricapi.Meter {
	return p.MeterProvider.Meter(instrumentationName)
}

// SetGlobal installs the tracer and meter providers globally for otelgrpc.
// The logger provider stays local to the session event emitter.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
