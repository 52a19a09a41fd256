package service

import (
	"errors"
	"sort"
	"strings"

	"crm-api/internal/entity"
	"crm-api/internal/repo"
)

var (
	ErrUnauthenticated   = errors.New("no authenticated user")
	ErrForbidden         = errors.New("insufficient permissions")
	ErrNotFound          = entity.ErrNotFound
	ErrUnknownEntityType = entity.ErrUnknownEntityType
	ErrUserNotFound      = repo.ErrUserNotFound
	ErrOverrideNotFound  = repo.ErrOverrideNotFound
	ErrUnknownResource   = errors.New("unknown permission resource")
	ErrSelfEscalation    = errors.New("cannot change your own permissions")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidCascade    = errors.New("invalid workflow deletion request")
	ErrWrongPassword     = errors.New("current password is incorrect")
	ErrWeakPassword      = errors.New("password does not meet policy")
)

// ValidationError carries per-field messages. It matches ErrValidation, and
// also Kind when set (e.g. ErrInvalidCascade, ErrWeakPassword).
type ValidationError struct {
	Kind    error
	Message string
	Fields  map[string]string
}

func newValidationError(kind error, message string, fields map[string]string) *ValidationError {
	return &ValidationError{Kind: kind, Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.Kind != nil && target == e.Kind)
}
