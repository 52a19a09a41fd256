// Package entity defines the generic CRUD surface every CRM entity is
// stored behind. Implementations live in internal/repo (Postgres) and
// internal/integrations/baas (hosted backend).
package entity

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"crm-api/internal/domain"
)

var (
	ErrNotFound          = errors.New("entity record not found")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrInvalidSort       = errors.New("invalid sort field")
	ErrInvalidPredicate  = errors.New("invalid filter predicate")
)

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=client.go -destination=../mocks/entity.go -package=mocks

// Client is the per-entity CRUD surface.
type Client interface {
	List(ctx context.Context, t domain.EntityType, opts domain.ListOptions) ([]domain.Record, error)
	// Filter returns records whose data contains every key/value of predicate.
	Filter(ctx context.Context, t domain.EntityType, predicate map[string]any, opts domain.ListOptions) ([]domain.Record, error)
	Get(ctx context.Context, t domain.EntityType, id string) (*domain.Record, error)
	Create(ctx context.Context, t domain.EntityType, data map[string]any, actorID string) (*domain.Record, error)
	// Update merges patch into the stored data (top-level keys replace).
	Update(ctx context.Context, t domain.EntityType, id string, patch map[string]any) (*domain.Record, error)
	Delete(ctx context.Context, t domain.EntityType, id string) error
}

// CheckType returns ErrUnknownEntityType for types outside the catalogue.
func CheckType(t domain.EntityType) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}
	return nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidField reports whether name is usable as a sort or filter key.
func ValidField(name string) bool {
	return fieldName.MatchString(name)
}

// CheckSort validates the sort field of opts.
func CheckSort(opts domain.ListOptions) error {
	field, _ := opts.SortField()
	if !ValidField(field) {
		return fmt.Errorf("%w: %q", ErrInvalidSort, opts.Sort)
	}
	return nil
}

// CheckPredicate validates predicate keys.
func CheckPredicate(predicate map[string]any) error {
	for k := range predicate {
		if !ValidField(k) {
			return fmt.Errorf("%w: key %q", ErrInvalidPredicate, k)
		}
	}
	return nil
}
