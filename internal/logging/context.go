package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runCtxKey struct{}
type phaseCtxKey struct{}
type loggerCtxKey struct{}

// WithRun tags ctx with a pipeline run id and project directory.
func WithRun(ctx context.Context, runID, project string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, [2]string{runID, project})
}

// WithPhase tags ctx with the phase currently executing.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseCtxKey{}, phase)
}

// PhaseFromContext returns the phase tag, or "".
func PhaseFromContext(ctx context.Context) string {
	p, _ := ctx.Value(phaseCtxKey{}).(string)
	return p
}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if run, ok := ctx.Value(runCtxKey{}).([2]string); ok {
		fields = append(fields, zap.String("run.id", run[0]), zap.String("run.project", run[1]))
	}
	if phase := PhaseFromContext(ctx); phase != "" {
		fields = append(fields, zap.String("run.phase", phase))
	}
	return fields
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Nop()
}
