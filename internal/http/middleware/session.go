package middleware

import (
	"context"
	"net/http"

	"crm-api/internal/auth"
	"crm-api/internal/domain"
	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SessionSource returns the (possibly cached) session for a user.
type SessionSource interface {
	Session(ctx context.Context, userID string) *permission.Session
}

// SessionMiddleware loads the caller's session after authentication and
// stores it in the request context. A degraded session is still attached:
// it denies every check, so handlers answer 403.
func SessionMiddleware(source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			claims, ok := auth.GetClaims(ctx)
			if !ok {
				log.Error(ctx, "claims not found in context",
					logger.Module("session"),
					logger.Action("load"),
				)
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "authentication required")
				return
			}

			sess := source.Session(ctx, claims.UserID())
			if sess.Degraded() {
				log.Warn(ctx, "serving request with degraded session",
					logger.Module("session"),
					logger.Action("load"),
					zap.Bool("has_user", sess.User != nil),
				)
			}

			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String("user.id", claims.UserID()),
				attribute.Bool("session.superuser", sess.IsSuperuser()),
			)

			next.ServeHTTP(w, r.WithContext(permission.WithSession(ctx, sess)))
		})
	}
}

// RequirePermission renders the wrapped handler only when the session may
// perform action on resource; otherwise it answers 403 FORBIDDEN.
func RequirePermission(resource domain.Resource, action domain.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, ok := permission.FromContext(ctx)
			if !ok {
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "authentication required")
				return
			}
			if !sess.CheckPermission(resource, action) || sess.GetPermissionLevel(resource) == domain.ScopeNone {
				logger.GetLogger(ctx).Warn(ctx, "permission denied",
					logger.Module("permission"),
					logger.Action("guard"),
					zap.String("resource", string(resource)),
					zap.String("required_action", string(action)),
				)
				httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
