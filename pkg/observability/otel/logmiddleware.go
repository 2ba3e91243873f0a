package otelobs

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"opsinsight/pkg/structlog"
)

// AccessLogMiddleware writes one structured access line per request with
// trace and correlation identifiers, and mirrors them as response headers.
func AccessLogMiddleware(log *structlog.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = structlog.NewLogger("http", structlog.LevelInfo, nil)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, corrID := structlog.GetOrCreateCorrelationID(r.Context())
		r = r.WithContext(ctx)
		w.Header().Set("X-Correlation-Id", corrID)

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		fields := structlog.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sr.status,
			"duration": time.Since(start).Milliseconds(),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
			sr.Header().Set("Trace-Id", sc.TraceID().String())
		}
		log.WithContext(r.Context()).Info("http request", fields)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
