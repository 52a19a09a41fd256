package service_test

import (
	"errors"
	"testing"

	"crm-api/internal/domain"
	"crm-api/internal/permission"
	"crm-api/internal/service"

	"github.com/stretchr/testify/require"
)

func grant(scope domain.Scope, pt domain.PermissionType) domain.Grant {
	return domain.Grant{Scope: scope, PermissionType: pt}
}

func newSession(userID string, grants map[domain.Resource]domain.Grant) *permission.Session {
	user := &domain.User{ID: userID, Email: userID + "@crm.example.com", Role: domain.RoleSales}
	return permission.NewSession(user, grants, false)
}

func superSession(userID string) *permission.Session {
	user := &domain.User{ID: userID, Email: userID + "@crm.example.com", Role: domain.RoleClient}
	return permission.NewSession(user, nil, true)
}

func requireFieldError(t *testing.T, err error, field string) *service.ValidationError {
	t.Helper()
	require.ErrorIs(t, err, service.ErrValidation)
	var verr *service.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, field)
	return verr
}

func ptr(s string) *string { return &s }
