package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of audit_log.
type AuditEntry struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   *string
	Metadata     map[string]any
	IPAddress    string
	UserAgent    string
}

// AuditRepo handles audit log storage
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// LogAction appends an entry to the audit log.
func (r *AuditRepo) LogAction(ctx context.Context, e AuditEntry) error {
	var metadata *string
	if e.Metadata != nil {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		s := string(raw)
		metadata = &s
	}

	query, args, err := psql.Insert("audit_log").
		Columns("actor_id", "action", "resource_type", "resource_id", "metadata", "ip_address", "user_agent").
		Values(e.ActorID, e.Action, e.ResourceType, e.ResourceID, metadata, e.IPAddress, e.UserAgent).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}
