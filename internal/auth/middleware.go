package auth

import (
	"context"
	"net/http"
	"strings"

	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"

	"go.uber.org/zap"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// Middleware validates the bearer token and stores the claims and user id
// in the request context.
func Middleware(resolver *KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			fail := func(reason AuthFailureReason, message string, err error, token string) {
				fields := []zap.Field{
					logger.Module("auth"),
					logger.Action("authenticate"),
					zap.String("auth_failure_reason", string(reason)),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				}
				if token != "" {
					fields = append(fields, zap.String("token_prefix", maskToken(token)))
				}
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				log.Warn(ctx, "authentication failed", fields...)
				httperr.Unauthorized401(w, ctx, errorCode(reason), message)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				fail(AuthFailureMissingAuthorization, "missing authorization header", nil, "")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
				fail(AuthFailureInvalidScheme, "invalid authorization scheme, expected Bearer", nil, "")
				return
			}

			claims, err := resolver.Resolve(ctx, token)
			if err != nil {
				reason := AuthFailureUnknown
				if authErr, ok := IsAuthError(err); ok {
					reason = authErr.Reason
				}
				fail(reason, "invalid or expired token", err, token)
				return
			}

			ctx = WithClaims(ctx, claims)
			ctx = logger.SetUserIDInContext(ctx, claims.UserID())

			log.Debug(ctx, "authenticated request",
				logger.Module("auth"),
				logger.Action("authenticate"),
				zap.String("issuer", claims.Issuer),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *CustomClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaims retrieves claims from context
func GetClaims(ctx context.Context) (*CustomClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*CustomClaims)
	return claims, ok && claims != nil
}
