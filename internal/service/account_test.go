package service_test

import (
	"context"
	"testing"

	"crm-api/internal/domain"
	"crm-api/internal/mocks"
	"crm-api/internal/observability/logger"
	"crm-api/internal/repo"
	"crm-api/internal/service"
	"crm-api/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

const currentPassword = "Atual-senha1"

func newAccountFixture(t *testing.T) (*service.AccountService, *mocks.MockPasswordStore, *mocks.MockAuditLogger) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPasswordStore(ctrl)
	audit := mocks.NewMockAuditLogger(ctrl)
	return service.NewAccountService(store, validation.DefaultPasswordPolicy(), audit, logger.NewNop()), store, audit
}

func storedUser(t *testing.T) *domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(currentPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{ID: "u1", Email: "u1@crm.example.com", Role: domain.RoleSales, PasswordHash: string(hash)}
}

func TestChangePassword_Success(t *testing.T) {
	svc, store, audit := newAccountFixture(t)
	user := storedUser(t)

	store.EXPECT().GetUser(gomock.Any(), "u1").Return(user, nil)
	store.EXPECT().UpdatePasswordHash(gomock.Any(), "u1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, hash string) error {
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Nova-senha2")))
			return nil
		})
	audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e repo.AuditEntry) error {
			assert.Equal(t, "password.change", e.Action)
			return nil
		})

	err := svc.ChangePassword(context.Background(), newSession("u1", nil), domain.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     "Nova-senha2",
		ConfirmPassword: "Nova-senha2",
	})
	require.NoError(t, err)
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	svc, store, _ := newAccountFixture(t)
	store.EXPECT().GetUser(gomock.Any(), "u1").Return(storedUser(t), nil)

	err := svc.ChangePassword(context.Background(), newSession("u1", nil), domain.ChangePasswordRequest{
		CurrentPassword: "chute-errado",
		NewPassword:     "Nova-senha2",
		ConfirmPassword: "Nova-senha2",
	})
	assert.ErrorIs(t, err, service.ErrWrongPassword)
	requireFieldError(t, err, "current_password")
}

func TestChangePassword_PolicyViolations(t *testing.T) {
	svc, store, _ := newAccountFixture(t)
	store.EXPECT().GetUser(gomock.Any(), "u1").Return(storedUser(t), nil).Times(2)

	err := svc.ChangePassword(context.Background(), newSession("u1", nil), domain.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     "curta",
		ConfirmPassword: "curta",
	})
	assert.ErrorIs(t, err, service.ErrWeakPassword)
	verr := requireFieldError(t, err, "new_password")
	assert.Contains(t, verr.Message, "at least 8")

	err = svc.ChangePassword(context.Background(), newSession("u1", nil), domain.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     currentPassword,
		ConfirmPassword: currentPassword,
	})
	assert.ErrorIs(t, err, service.ErrWeakPassword)
}

func TestChangePassword_RejectsBeforeLoadingUser(t *testing.T) {
	svc, _, _ := newAccountFixture(t)

	err := svc.ChangePassword(context.Background(), newSession("u1", nil), domain.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     "Nova-senha2",
		ConfirmPassword: "Outra-senha3",
	})
	requireFieldError(t, err, "confirm_password")

	err = svc.ChangePassword(context.Background(), nil, domain.ChangePasswordRequest{})
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}
