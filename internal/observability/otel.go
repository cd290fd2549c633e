package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing installs a process-wide TracerProvider. Retain/Recall/Reflect/
// Consolidation each open a span via StartSpan so that LoggerWithTrace can
// enrich log lines with trace_id/span_id. No exporter is wired here: this
// engine has no HTTP surface of its own (§1 scopes that to an external
// collaborator), so there's no inbound request path to export spans for by
// default. An embedding process that wants spans shipped somewhere can call
// otel.SetTracerProvider again with its own exporter.
func InitTracing() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// StartSpan opens a span under the given tracer name, mirroring
// internal/llm.StartRequestSpan. Callers are responsible for calling
// span.End().
func StartSpan(ctx context.Context, tracerName, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, operation)
}
