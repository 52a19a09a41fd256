package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-api/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOverrideNotFound = errors.New("permission override not found")

var overrideColumns = []string{"id", "user_id", "resource", "level", "permission_type", "created_at", "updated_at"}

// OverrideRepo persists per-user permission overrides (one row per user and resource).
type OverrideRepo struct {
	pool *pgxpool.Pool
}

func NewOverrideRepo(pool *pgxpool.Pool) *OverrideRepo {
	return &OverrideRepo{pool: pool}
}

func (r *OverrideRepo) ListByUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error) {
	query, args, err := psql.Select(overrideColumns...).
		From("permission_overrides").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("resource").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build override query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []domain.PermissionOverride
	for rows.Next() {
		var (
			o                     domain.PermissionOverride
			resource, level, tier string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &resource, &level, &tier, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Resource = domain.Resource(resource)
		o.Level = domain.Scope(level)
		o.PermissionType = domain.PermissionType(tier)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return out, nil
}

// Upsert creates or replaces the override for (user, resource).
func (r *OverrideRepo) Upsert(ctx context.Context, o *domain.PermissionOverride) error {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	query, args, err := psql.Insert("permission_overrides").
		Columns(overrideColumns...).
		Values(o.ID, o.UserID, string(o.Resource), string(o.Level), string(o.PermissionType), now, now).
		Suffix(`ON CONFLICT (user_id, resource) DO UPDATE
			SET level = EXCLUDED.level, permission_type = EXCLUDED.permission_type, updated_at = EXCLUDED.updated_at
			RETURNING id, created_at, updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build override upsert: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// Delete removes the override, restoring the role default.
func (r *OverrideRepo) Delete(ctx context.Context, userID string, resource domain.Resource) error {
	query, args, err := psql.Delete("permission_overrides").
		Where(sq.Eq{"user_id": userID, "resource": string(resource)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build override delete: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}
