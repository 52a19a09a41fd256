package permission

import (
	"context"
	"strings"
	"time"

	"crm-api/internal/domain"
	"crm-api/internal/observability/logger"

	"go.uber.org/zap"
)

// UserStore fetches the authenticated user (User.me()).
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// OverrideStore fetches per-user permission overrides.
type OverrideStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error)
}

// Resolver computes sessions: role defaults overlaid with per-user overrides.
type Resolver struct {
	users      UserStore
	overrides  OverrideStore
	table      RoleTable
	superusers map[string]bool
	log        *logger.Logger
	now        func() time.Time
}

// NewResolver creates a Resolver. The table is cloned so later changes to the
// caller's copy do not leak into resolved sessions.
func NewResolver(users UserStore, overrides OverrideStore, table RoleTable, superuserEmails []string, log *logger.Logger) *Resolver {
	su := make(map[string]bool, len(superuserEmails))
	for _, email := range superuserEmails {
		if e := normalizeEmail(email); e != "" {
			su[e] = true
		}
	}
	return &Resolver{
		users:      users,
		overrides:  overrides,
		table:      table.Clone(),
		superusers: su,
		log:        log,
		now:        time.Now,
	}
}

// Load resolves the session for userID. It never fails: a user fetch error
// yields an empty session (every check denies) and an override fetch error
// yields the role defaults. Errors are logged and the session is marked
// degraded so callers can avoid caching it.
func (r *Resolver) Load(ctx context.Context, userID string) *Session {
	s := &Session{
		Permissions: map[domain.Resource]domain.Grant{},
		LoadedAt:    r.now(),
	}

	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		r.log.Error(ctx, "failed to load current user",
			logger.Module("permission"),
			logger.Action("load"),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		s.degraded = true
		return s
	}
	s.User = user
	s.superuser = r.superusers[normalizeEmail(user.Email)]
	s.Permissions = r.table.Grants(user.Role)

	if !user.Role.IsValid() {
		r.log.Warn(ctx, "user has unknown role, denying all resources",
			logger.Module("permission"),
			logger.Action("load"),
			zap.String("user_id", userID),
			zap.String("role", string(user.Role)),
		)
	}

	overrides, err := r.overrides.ListByUser(ctx, userID)
	if err != nil {
		r.log.Error(ctx, "failed to load permission overrides, using role defaults",
			logger.Module("permission"),
			logger.Action("load"),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		s.degraded = true
		return s
	}

	for _, o := range overrides {
		s.Permissions[o.Resource] = o.Grant()
	}

	r.log.Debug(ctx, "session resolved",
		logger.Module("permission"),
		logger.Action("load"),
		zap.String("user_id", userID),
		zap.String("role", string(user.Role)),
		zap.Int("overrides", len(overrides)),
		zap.Bool("superuser", s.superuser),
	)
	return s
}

// IsSuperuserEmail reports whether the e-mail is on the allow-list.
func (r *Resolver) IsSuperuserEmail(email string) bool {
	return r.superusers[normalizeEmail(email)]
}

// Table returns a copy of the role table in use.
func (r *Resolver) Table() RoleTable {
	return r.table.Clone()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is the resolved, read-only permission state of one user.
type Session struct {
	User        *domain.User
	Permissions map[domain.Resource]domain.Grant
	LoadedAt    time.Time

	superuser bool
	degraded  bool
}

// NewSession builds a session directly. Used by tests and by callers that
// already hold the effective grants.
func NewSession(user *domain.User, grants map[domain.Resource]domain.Grant, superuser bool) *Session {
	return &Session{
		User:        user,
		Permissions: cloneGrants(grants),
		LoadedAt:    time.Now(),
		superuser:   superuser,
	}
}

// CheckPermission reports whether the session may perform action on
// resource. An empty action means view.
func (s *Session) CheckPermission(resource domain.Resource, action domain.Action) bool {
	if s == nil || s.User == nil {
		return false
	}
	if s.superuser {
		return true
	}
	if action == "" {
		action = domain.ActionView
	}
	grant, ok := s.Permissions[resource]
	if !ok {
		return false
	}
	return grant.PermissionType.Allows(action)
}

// GetPermissionLevel returns the data visibility scope for resource.
func (s *Session) GetPermissionLevel(resource domain.Resource) domain.Scope {
	if s == nil || s.User == nil {
		return domain.ScopeNone
	}
	if s.superuser {
		return domain.ScopeTotal
	}
	grant, ok := s.Permissions[resource]
	if !ok || !grant.Scope.IsValid() {
		return domain.ScopeNone
	}
	return grant.Scope
}

// IsSuperuser reports whether the session bypasses all checks.
func (s *Session) IsSuperuser() bool {
	return s != nil && s.User != nil && s.superuser
}

// Degraded reports whether the session was built after a fetch failure.
func (s *Session) Degraded() bool {
	return s != nil && s.degraded
}

// UserID returns the session user's id, or "" when none is loaded.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Effective returns the effective grant of every known resource. Superusers
// see total/full everywhere.
func (s *Session) Effective() map[domain.Resource]domain.Grant {
	out := make(map[domain.Resource]domain.Grant, len(domain.AllResources))
	for _, res := range domain.AllResources {
		switch {
		case s.IsSuperuser():
			out[res] = domain.Grant{Scope: domain.ScopeTotal, PermissionType: domain.PermissionFull}
		case s == nil:
			out[res] = domain.NoGrant
		default:
			if grant, ok := s.Permissions[res]; ok {
				out[res] = grant
			} else {
				out[res] = domain.NoGrant
			}
		}
	}
	return out
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok && s != nil
}
