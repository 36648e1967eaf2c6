package cli

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/vidproof/internal/config"
)

// setupTracing builds the tracer provider mode selects and installs it
// globally. The OTLP exporter reads its endpoint from the standard
// OTEL_EXPORTER_OTLP_* variables. The returned function flushes spans.
func setupTracing(ctx context.Context, mode string, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch mode {
	case config.TracingStdout:
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case config.TracingOTLP:
		exp, err = otlptracehttp.New(ctx)
	case config.TracingOff, "":
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown tracing mode %q", mode)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create %s exporter: %w", mode, err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}
