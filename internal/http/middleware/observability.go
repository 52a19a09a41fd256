package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"
	"crm-api/internal/observability/requestid"
	"crm-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const TraceIDHeader = "X-Trace-Id"

// RequestIDMiddleware reads or generates the request id and propagates it
// through the context and the response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestid.FromInbound(r.Header.Get(requestid.Header))
		ctx := requestid.SetRequestID(r.Context(), reqID)
		w.Header().Set(requestid.Header, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceHeaderMiddleware exposes the active trace as X-Trace-Id. It must run
// inside the otel handler.
func TraceHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			w.Header().Set(TraceIDHeader, sc.TraceID().String())
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLoggingMiddleware logs one line per request once the response is
// written. Bodies and sensitive headers are never logged.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.SetLoggerInContext(r.Context(), log)
			ctx = logger.InitRootErrorContext(ctx)
			ctx = service.WithClientInfo(ctx, service.ClientInfo{
				IPAddress: clientIP(r),
				UserAgent: sanitizeUserAgent(r.UserAgent()),
			})

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", getRoutePattern(r)),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("remote_addr", clientIP(r)),
				zap.String("user_agent", sanitizeUserAgent(r.UserAgent())),
			}
			log.Info(ctx, "http request completed", fields...)

			if wrapped.statusCode >= 500 {
				logServerError(ctx, log, r, wrapped.statusCode)
			}
		})
	}
}

func logServerError(ctx context.Context, log *logger.Logger, r *http.Request, status int) {
	rootErr := logger.GetRootError(ctx)
	fields := []zap.Field{
		logger.Module("http"),
		logger.Action("http_error"),
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("route", getRoutePattern(r)),
		zap.String("kind", classifyError(rootErr)),
	}
	if rootErr != nil {
		fields = append(fields, zap.String("err", rootErr.Error()))
		var pgErr *pgconn.PgError
		if errors.As(rootErr, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
	} else {
		fields = append(fields, zap.String("err", "internal server error (unspecified cause)"))
	}
	log.Error(ctx, "http_error", fields...)
}

// RecoveryMiddleware turns a panic into a 500 envelope and logs the stack.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger.SetRootError(ctx, fmt.Errorf("panic: %v", rec))

				log.Error(ctx, "panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("route", getRoutePattern(r)),
				)
				httperr.InternalError(w, ctx)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var sensitiveQueryKeys = []string{"token", "password", "secret", "key", "cpf", "cnpj", "email", "phone"}

// sanitizeQuery masks values of sensitive keys and truncates long queries.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	parts := strings.Split(query, "&")
	for i, p := range parts {
		k, _, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		lk := strings.ToLower(k)
		for _, s := range sensitiveQueryKeys {
			if strings.Contains(lk, s) {
				parts[i] = k + "=[REDACTED]"
				break
			}
		}
	}
	query = strings.Join(parts, "&")

	const maxLen = 200
	if len(query) > maxLen {
		return query[:maxLen] + "..."
	}
	return query
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr without port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

// getRoutePattern returns the chi route pattern, or the raw path outside chi.
func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// classifyError buckets a root cause for the http_error log line.
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "db"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "panic"):
		return "panic"
	case strings.Contains(msg, "scan"):
		return "scan"
	case strings.Contains(msg, "baas:"):
		return "upstream"
	case strings.Contains(msg, "context deadline exceeded"):
		return "timeout"
	}
	return "unknown"
}
