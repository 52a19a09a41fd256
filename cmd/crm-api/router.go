package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"crm-api/internal/auth"
	"crm-api/internal/config"
	"crm-api/internal/domain"
	"crm-api/internal/http/docs"
	"crm-api/internal/http/handler"
	"crm-api/internal/http/middleware"
	"crm-api/internal/observability/logger"
	"crm-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadyCheck is one dependency checked by /ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterDeps contém as dependências necessárias para construir o router.
type RouterDeps struct {
	Cfg         *config.Config
	Log         *logger.Logger
	Resolver    *auth.KeyResolver
	Sessions    middleware.SessionSource
	Idempotency middleware.IdempotencyStore
	RateLimiter middleware.Limiter // nil desliga o rate limit
	Metrics     *telemetry.Metrics
	ReadyChecks []ReadyCheck

	// Handlers
	SessionHandler    *handler.SessionHandler
	PermissionHandler *handler.PermissionHandler
	EntityHandler     *handler.EntityHandler
	WorkflowHandler   *handler.WorkflowHandler
}

// buildRouter constrói o chi.Router com todos os middlewares e rotas.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	r.Use(middleware.TraceHeaderMiddleware)
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Get("/ready", readyHandler(deps.Log, deps.ReadyChecks))
	r.Get("/metrics", metricsHandler(deps.Cfg.MetricsToken))

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	// Protected routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Resolver))
		r.Use(middleware.SessionMiddleware(deps.Sessions))
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerUserPerMin))
		}
		idempotent := middleware.IdempotencyMiddleware(deps.Idempotency)

		if deps.SessionHandler != nil {
			r.Route("/me", func(r chi.Router) {
				r.Get("/", deps.SessionHandler.Me)
				r.Get("/permissions", deps.SessionHandler.MyPermissions)
				r.With(middleware.IdempotencyMiddleware(deps.Idempotency, middleware.OmitRequestPayload())).
					Post("/password", deps.SessionHandler.ChangePassword)
			})
		}

		if deps.PermissionHandler != nil {
			r.Route("/users/{userId}/permissions", func(r chi.Router) {
				r.With(middleware.RequirePermission(domain.ResourceManagement, domain.ActionView)).
					Get("/", deps.PermissionHandler.GetUserPermissions)
				r.With(middleware.RequirePermission(domain.ResourceManagement, domain.ActionEdit)).
					Put("/{resource}", deps.PermissionHandler.SetOverride)
				r.With(middleware.RequirePermission(domain.ResourceManagement, domain.ActionDelete)).
					Delete("/{resource}", deps.PermissionHandler.ResetOverride)
			})
		}

		if deps.EntityHandler != nil {
			r.Route("/entities/{entityType}", func(r chi.Router) {
				r.Get("/", deps.EntityHandler.List)
				r.With(idempotent).Post("/", deps.EntityHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", deps.EntityHandler.Get)
					r.With(idempotent).Patch("/", deps.EntityHandler.Update)
					r.Delete("/", deps.EntityHandler.Delete)
				})
			})
		}

		if deps.WorkflowHandler != nil {
			r.With(middleware.RequirePermission(domain.ResourceCRM, domain.ActionDelete), idempotent).
				Post("/workflows/{workflowId}/:delete", deps.WorkflowHandler.DeleteWorkflow)
		}
	})

	return r
}

func readyHandler(log *logger.Logger, checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				log.Error(ctx, "readiness check failed",
					logger.Module("http"),
					logger.Action("ready"),
					zap.String("dependency", c.Name),
					zap.Error(err),
				)
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"error","message":"`+c.Name+` unavailable"}`)
				return
			}
		}
		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	}
}

// metricsHandler serves the Prometheus registry. With a token configured the
// caller must send it as X-Metrics-Token or as a bearer token.
func metricsHandler(token string) http.HandlerFunc {
	prom := promhttp.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got := r.Header.Get("X-Metrics-Token")
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeStatus(w, http.StatusUnauthorized, `{"status":"error","message":"unauthorized"}`)
				return
			}
		}
		prom.ServeHTTP(w, r)
	}
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
