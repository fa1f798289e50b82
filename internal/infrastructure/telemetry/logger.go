package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// SetupLogger creates a structured JSON logger with OpenTelemetry integration.
func SetupLogger(level string) (*slog.Logger, error) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	handler := &TracedHandler{
		Handler: slog.NewJSONHandler(os.Stdout, opts),
	}

	return slog.New(handler), nil
}

// TracedHandler is a slog handler that adds OpenTelemetry trace context
// to every record logged with a span in its context.
type TracedHandler struct {
	slog.Handler
}

func (h *TracedHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
		if span.SpanContext().IsSampled() {
			r.AddAttrs(slog.Bool("sampled", true))
		}
	}

	return h.Handler.Handle(ctx, r)
}

// WithContext returns a logger annotated with the trace attributes carried
// by ctx, if any.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}

	return logger.With(
		"trace_id", span.SpanContext().TraceID().String(),
		"span_id", span.SpanContext().SpanID().String(),
	)
}
