package logging

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// contextAttrs returns the request id set by chi's RequestID middleware and
// the active span's ids, as slog-style key/value pairs.
func contextAttrs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var out []any
	if id := middleware.GetReqID(ctx); id != "" {
		out = append(out, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return out
}

func withContext(ctx context.Context, args []any) []any {
	extra := contextAttrs(ctx)
	if len(extra) == 0 {
		return args
	}
	return append(extra, args...)
}
