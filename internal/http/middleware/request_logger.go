package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

const requestIDKey contextKey = "requestID"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request and propagates a request id.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, reqID)))

			level := logger.Info
			if rec.status >= http.StatusInternalServerError {
				level = logger.Error
			}
			level("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"request_id", reqID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
