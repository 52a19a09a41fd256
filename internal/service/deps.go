package service

import (
	"context"

	"crm-api/internal/domain"
	"crm-api/internal/events"
	"crm-api/internal/observability/logger"
	"crm-api/internal/repo"

	"go.uber.org/zap"
)

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=deps.go -destination=../mocks/service.go -package=mocks

// AuditLogger appends to the audit log.
type AuditLogger interface {
	LogAction(ctx context.Context, e repo.AuditEntry) error
}

// UserReader loads users by id.
type UserReader interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// PasswordStore reads users and replaces password hashes.
type PasswordStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// OverrideStore reads and writes per-user permission overrides.
type OverrideStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error)
	Upsert(ctx context.Context, o *domain.PermissionOverride) error
	Delete(ctx context.Context, userID string, resource domain.Resource) error
}

// SessionInvalidator drops a cached session so the next request reloads it.
type SessionInvalidator interface {
	Invalidate(userID string)
}

type clientInfoKey struct{}

// ClientInfo is the caller's network identity, recorded in audit entries.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithClientInfo stores the caller's IP and user agent in ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

func clientInfo(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}

// writeAudit never fails the operation; errors are logged.
func writeAudit(ctx context.Context, audit AuditLogger, log *logger.Logger, module string, e repo.AuditEntry) {
	if audit == nil {
		return
	}
	info := clientInfo(ctx)
	e.IPAddress, e.UserAgent = info.IPAddress, info.UserAgent
	if err := audit.LogAction(ctx, e); err != nil {
		log.Error(ctx, "failed to write audit log",
			logger.Module(module),
			logger.Action("audit"),
			zap.String("audit_action", e.Action),
			zap.Error(err),
		)
	}
}

// publish is best effort: a broker failure is logged, never returned.
func publish(ctx context.Context, pub events.Publisher, log *logger.Logger, module string, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn(ctx, "failed to publish event",
			logger.Module(module),
			logger.Action("publish"),
			zap.String("event_type", e.Type),
			zap.Error(err),
		)
	}
}
