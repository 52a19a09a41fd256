package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// Limiter counts a request against a user's budget.
type Limiter interface {
	Allow(ctx context.Context, userID string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

// RateLimitMiddleware enforces limitPerMin requests per user per minute.
// A limiter failure lets the request through.
func RateLimitMiddleware(limiter Limiter, limitPerMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			userID := logger.GetUserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, err := limiter.Allow(ctx, userID, limitPerMin, rateLimitWindow)
			if err != nil {
				log.Error(ctx, "rate limit check failed, allowing request",
					logger.Module("ratelimit"),
					logger.Action("check"),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limitPerMin))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10))

			if !allowed {
				trace.SpanFromContext(ctx).AddEvent("rate_limit_exceeded")
				log.Warn(ctx, "rate limit exceeded",
					logger.Module("ratelimit"),
					logger.Action("reject"),
					zap.Int("limit", limitPerMin),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
				httperr.TooManyRequests429(w, ctx, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
