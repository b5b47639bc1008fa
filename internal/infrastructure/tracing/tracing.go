// Package tracing configures OpenTelemetry for the console and exposes small
// helpers used around upstream calls, permission checks and page loads.
package tracing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by all console spans.
const InstrumentationName = "github.com/flowctl/console"

// Config controls the tracer provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OutputFile receives stdout-exporter spans; empty means os.Stdout.
	OutputFile string
}

// Provider owns the SDK tracer provider and the exporter output.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

var (
	installMu sync.Mutex
	installed *Provider
)

// Init installs a global tracer provider backed by the stdout exporter.
// Calling Init again returns the provider installed first.
func Init(cfg Config) (*Provider, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	p, err := InitWithExporter(cfg, exporter)
	if err != nil {
		return nil, err
	}
	if p.closer == nil {
		p.closer = closer
	}
	return p, nil
}

// InitWithExporter installs a global tracer provider using the given exporter.
func InitWithExporter(cfg Config, exporter sdktrace.SpanExporter) (*Provider, error) {
	if exporter == nil {
		return nil, errors.New("tracing: nil exporter")
	}

	installMu.Lock()
	defer installMu.Unlock()

	if installed != nil {
		return installed, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	installed = &Provider{tp: tp}
	return installed, nil
}

// Shutdown flushes pending spans and releases the exporter output.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		err = errors.Join(err, p.closer.Close())
	}

	installMu.Lock()
	if installed == p {
		installed = nil
	}
	installMu.Unlock()
	return err
}

// StartSpan starts a span of the given kind on the global tracer.
func StartSpan(
	ctx context.Context,
	name string,
	kind trace.SpanKind,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SetHTTPStatus maps an HTTP status code onto the span status.
func SetHTTPStatus(span trace.Span, code int) {
	span.SetAttributes(attribute.Int("http.status_code", code))
	switch {
	case code >= 500:
		span.SetStatus(codes.Error, "server error")
	case code >= 400:
		span.SetStatus(codes.Error, "client error")
	}
}
