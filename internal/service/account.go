package service

import (
	"context"
	"errors"
	"fmt"

	"crm-api/internal/domain"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/repo"
	"crm-api/internal/validation"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// AccountService handles the caller's own account.
type AccountService struct {
	store      PasswordStore
	policy     validation.PasswordPolicy
	bcryptCost int
	audit      AuditLogger
	validate   *validator.Validate
	log        *logger.Logger
}

func NewAccountService(store PasswordStore, policy validation.PasswordPolicy, audit AuditLogger, log *logger.Logger) *AccountService {
	return &AccountService{
		store:      store,
		policy:     policy,
		bcryptCost: bcrypt.DefaultCost,
		audit:      audit,
		validate:   validation.NewValidator(),
		log:        log,
	}
}

// ChangePassword verifies the current password and stores a hash of the new
// one. Policy violations come back as a ValidationError whose message lists
// every violated rule.
func (s *AccountService) ChangePassword(ctx context.Context, sess *permission.Session, req domain.ChangePasswordRequest) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if sess.User == nil {
		return ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return newValidationError(nil, "invalid password change request", validation.FieldErrors(err))
	}

	user, err := s.store.GetUser(ctx, sess.UserID())
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
			return newValidationError(ErrWrongPassword, ErrWrongPassword.Error(), map[string]string{
				"current_password": "is incorrect",
			})
		}
		return fmt.Errorf("compare password: %w", err)
	}

	violations := validation.ValidatePassword(req.NewPassword, s.policy)
	if req.NewPassword == req.CurrentPassword {
		violations = append(violations, "must differ from the current password")
	}
	if len(violations) > 0 {
		return newValidationError(ErrWeakPassword, validation.PasswordError(violations), map[string]string{
			"new_password": validation.PasswordError(violations),
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.log.Info(ctx, "password changed",
		logger.Module("account"),
		logger.Action("change_password"),
	)
	writeAudit(ctx, s.audit, s.log, "account", repo.AuditEntry{
		ActorID:      user.ID,
		Action:       "password.change",
		ResourceType: "User",
		ResourceID:   &user.ID,
	})
	return nil
}
