package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/italolelis/datacart_status/internal/logctx"
)

// HTTPMiddleware records a span, RED metrics and a log line per request.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

// NewHTTPMiddleware creates a new HTTP middleware for telemetry.
func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{
		telemetry: telemetry,
	}
}

// Middleware returns the HTTP middleware function.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.telemetry.IncrementHTTPInFlight()
		defer m.telemetry.DecrementHTTPInFlight()

		rw := wrapResponseWriter(w)

		if tracer := m.telemetry.Tracer(); tracer != nil {
			ctx, span := tracer.Start(r.Context(), "http_request")
			defer func() {
				span.SetAttributes(attribute.Int("http.status_code", rw.status))

				if rw.status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.status))
				}

				span.End()
			}()

			span.SetAttributes(attribute.String("http.method", r.Method))

			r = r.WithContext(ctx)
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		m.telemetry.RecordHTTPRequest(r.Method, routePattern(r), getStatusClass(rw.status), duration)

		logRequest(r, rw.status, duration)
	})
}

// logRequest logs 5xx at ERROR, 4xx at WARN and everything else at INFO.
func logRequest(r *http.Request, status int, duration time.Duration) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"request_id", GetRequestID(ctx),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "http request completed", attrs...)
	case status >= http.StatusBadRequest:
		logger.WarnContext(ctx, "http request completed", attrs...)
	default:
		logger.InfoContext(ctx, "http request completed", attrs...)
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
}

// wrapResponseWriter creates a new responseWriter with status defaulted to 200 OK.
func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.wroteHeader = true

	rw.ResponseWriter.WriteHeader(code)
}

// Write captures implicit 200 OK if WriteHeader was not called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	return rw.ResponseWriter.Write(b)
}

// getStatusClass returns the status class (2xx, 3xx, 4xx, 5xx) for a given status code.
func getStatusClass(statusCode int) string {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "2xx"
	case statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest:
		return "3xx"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "unknown"
	}
}
