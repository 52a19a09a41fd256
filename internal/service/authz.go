package service

import (
	"fmt"

	"crm-api/internal/domain"
	"crm-api/internal/permission"
)

// authorize denies by default: a missing session is unauthenticated, a
// session without a user (failed load) is forbidden everywhere. A grant with
// scope none reaches no record, whatever its tier.
func authorize(sess *permission.Session, res domain.Resource, action domain.Action) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if !sess.CheckPermission(res, action) || sess.GetPermissionLevel(res) == domain.ScopeNone {
		return fmt.Errorf("%w: %s:%s", ErrForbidden, res, action)
	}
	return nil
}

// ownerFilter returns the user id to restrict reads to under personal scope.
func ownerFilter(sess *permission.Session, res domain.Resource) *string {
	if sess.GetPermissionLevel(res) != domain.ScopePersonal {
		return nil
	}
	id := sess.UserID()
	return &id
}

// ownedBy reports whether rec may be touched by a personal-scope user.
func ownedBy(rec *domain.Record, userID string) bool {
	return rec.CreatedBy != nil && *rec.CreatedBy == userID
}
