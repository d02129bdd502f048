package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/replyd/idgen"
	"github.com/hazyhaar/replyd/kit"
)

// TraceID tags each request with a trace ID in the context, the X-Trace-ID
// response header and a per-request logger stored under LoggerKey.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	gen := idgen.Prefixed("req_", idgen.UUIDv7())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := gen()
			ctx := kit.WithTraceID(r.Context(), traceID)
			w.Header().Set("X-Trace-ID", traceID)

			l := logger.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("status: request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
