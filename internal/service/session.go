package service

import (
	"context"
	"fmt"

	"crm-api/internal/domain"
	"crm-api/internal/events"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/repo"
	"crm-api/internal/validation"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// PermissionService exposes the caller's session and administers per-user overrides.
type PermissionService struct {
	users       UserReader
	overrides   OverrideStore
	resolver    *permission.Resolver
	invalidator SessionInvalidator
	publisher   events.Publisher
	audit       AuditLogger
	validate    *validator.Validate
	log         *logger.Logger
}

func NewPermissionService(
	users UserReader,
	overrides OverrideStore,
	resolver *permission.Resolver,
	invalidator SessionInvalidator,
	publisher events.Publisher,
	audit AuditLogger,
	log *logger.Logger,
) *PermissionService {
	return &PermissionService{
		users:       users,
		overrides:   overrides,
		resolver:    resolver,
		invalidator: invalidator,
		publisher:   publisher,
		audit:       audit,
		validate:    validation.NewValidator(),
		log:         log,
	}
}

// Me returns the current user and effective permissions (User.me()).
func (s *PermissionService) Me(sess *permission.Session) (*domain.MeResponse, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	if sess.User == nil {
		return nil, ErrForbidden
	}
	return &domain.MeResponse{
		User:        sess.User,
		Superuser:   sess.IsSuperuser(),
		Permissions: sess.Effective(),
		LoadedAt:    sess.LoadedAt,
	}, nil
}

// UserPermissions shows a user's role defaults, overrides and effective grants.
func (s *PermissionService) UserPermissions(ctx context.Context, sess *permission.Session, userID string) (*domain.UserPermissions, error) {
	if err := authorize(sess, domain.ResourceManagement, domain.ActionView); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	overrides, err := s.overrides.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	superuser := s.resolver.IsSuperuserEmail(user.Email)
	grants := s.resolver.Table().Grants(user.Role)
	for _, o := range overrides {
		grants[o.Resource] = o.Grant()
	}
	effective := permission.NewSession(user, grants, superuser).Effective()

	if overrides == nil {
		overrides = []domain.PermissionOverride{}
	}
	return &domain.UserPermissions{
		UserID:    user.ID,
		Role:      user.Role,
		Superuser: superuser,
		Overrides: overrides,
		Effective: effective,
	}, nil
}

// SetOverride replaces the role default of userID for resource and drops the
// user's cached session so the change applies on their next request.
func (s *PermissionService) SetOverride(ctx context.Context, sess *permission.Session, userID string, resource domain.Resource, req domain.SetOverrideRequest) (*domain.PermissionOverride, error) {
	if err := s.checkWrite(sess, userID, resource, domain.ActionEdit); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, newValidationError(nil, "invalid permission override", validation.FieldErrors(err))
	}
	// a none tier always travels with a none scope
	if req.PermissionType == domain.PermissionNone {
		req.Level = domain.ScopeNone
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	o := &domain.PermissionOverride{
		UserID:         userID,
		Resource:       resource,
		Level:          req.Level,
		PermissionType: req.PermissionType,
	}
	if err := s.overrides.Upsert(ctx, o); err != nil {
		return nil, fmt.Errorf("upsert override: %w", err)
	}
	s.changed(ctx, sess, events.TypePermissionOverrideSet, "permission.override_set", userID, resource, map[string]any{
		"resource":        string(resource),
		"level":           string(o.Level),
		"permission_type": string(o.PermissionType),
	})
	return o, nil
}

// ResetOverride removes the override, restoring the role default.
func (s *PermissionService) ResetOverride(ctx context.Context, sess *permission.Session, userID string, resource domain.Resource) error {
	if err := s.checkWrite(sess, userID, resource, domain.ActionDelete); err != nil {
		return err
	}
	if err := s.overrides.Delete(ctx, userID, resource); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	s.changed(ctx, sess, events.TypePermissionOverrideReset, "permission.override_reset", userID, resource, map[string]any{
		"resource": string(resource),
	})
	return nil
}

func (s *PermissionService) checkWrite(sess *permission.Session, userID string, resource domain.Resource, action domain.Action) error {
	if err := authorize(sess, domain.ResourceManagement, action); err != nil {
		return err
	}
	if !resource.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	if userID == sess.UserID() && !sess.IsSuperuser() {
		return ErrSelfEscalation
	}
	return nil
}

func (s *PermissionService) changed(ctx context.Context, sess *permission.Session, eventType, action, userID string, resource domain.Resource, meta map[string]any) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}

	s.log.Info(ctx, "permission override changed",
		logger.Module("permission"),
		logger.Action(action),
		zap.String("target_user_id", userID),
		zap.String("resource", string(resource)),
	)
	publish(ctx, s.publisher, s.log, "permission", events.New(eventType, "User", userID, sess.UserID(), meta))
	target := userID
	writeAudit(ctx, s.audit, s.log, "permission", repo.AuditEntry{
		ActorID:      sess.UserID(),
		Action:       action,
		ResourceType: "PermissionOverride",
		ResourceID:   &target,
		Metadata:     meta,
	})
}
