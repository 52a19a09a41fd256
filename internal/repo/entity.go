package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-api/internal/domain"
	"crm-api/internal/entity"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{"id", "entity_type", "data", "created_by", "created_at", "updated_at"}

// EntityRepo stores every entity type in entity_records with a JSONB payload.
type EntityRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ entity.Client = (*EntityRepo)(nil)

func NewEntityRepo(pool *pgxpool.Pool) *EntityRepo {
	return &EntityRepo{pool: pool, now: time.Now}
}

func (r *EntityRepo) List(ctx context.Context, t domain.EntityType, opts domain.ListOptions) ([]domain.Record, error) {
	return r.Filter(ctx, t, nil, opts)
}

func (r *EntityRepo) Filter(ctx context.Context, t domain.EntityType, predicate map[string]any, opts domain.ListOptions) ([]domain.Record, error) {
	stmt, err := buildSelect(t, predicate, opts)
	if err != nil {
		return nil, err
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s records: %w", t, err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0, opts.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", t, err)
	}
	return records, nil
}

// buildSelect is split out so the generated SQL can be asserted without a database.
func buildSelect(t domain.EntityType, predicate map[string]any, opts domain.ListOptions) (sq.SelectBuilder, error) {
	if err := entity.CheckType(t); err != nil {
		return sq.SelectBuilder{}, err
	}
	if err := entity.CheckPredicate(predicate); err != nil {
		return sq.SelectBuilder{}, err
	}
	opts.Normalize()
	if err := entity.CheckSort(opts); err != nil {
		return sq.SelectBuilder{}, err
	}

	stmt := psql.Select(recordColumns...).
		From("entity_records").
		Where(sq.Eq{"entity_type": string(t)})

	if len(predicate) > 0 {
		raw, err := json.Marshal(predicate)
		if err != nil {
			return sq.SelectBuilder{}, fmt.Errorf("%w: %v", entity.ErrInvalidPredicate, err)
		}
		stmt = stmt.Where("data @> ?::jsonb", string(raw))
	}
	if opts.CreatedBy != nil {
		stmt = stmt.Where(sq.Eq{"created_by": *opts.CreatedBy})
	}

	stmt = stmt.OrderBy(orderBy(opts), "id").Limit(uint64(opts.Limit))
	if opts.Offset > 0 {
		stmt = stmt.Offset(uint64(opts.Offset))
	}
	return stmt, nil
}

// orderBy maps the sort expression to SQL. Field names were validated by CheckSort.
func orderBy(opts domain.ListOptions) string {
	field, desc := opts.SortField()
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch field {
	case "created_date", "created_at":
		return "created_at " + dir
	case "updated_date", "updated_at":
		return "updated_at " + dir
	case "id":
		return "id " + dir
	}
	return fmt.Sprintf("data->>'%s' %s NULLS LAST", field, dir)
}

func (r *EntityRepo) Get(ctx context.Context, t domain.EntityType, id string) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	query, args, err := psql.Select(recordColumns...).
		From("entity_records").
		Where(sq.Eq{"entity_type": string(t), "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity query: %w", err)
	}

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *EntityRepo) Create(ctx context.Context, t domain.EntityType, data map[string]any, actorID string) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	rec := &domain.Record{ID: uuid.NewString(), EntityType: t, Data: data}
	raw, err := rec.MarshalData()
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", t, err)
	}
	var createdBy *string
	if actorID != "" {
		createdBy = &actorID
	}
	now := r.now().UTC()

	query, args, err := psql.Insert("entity_records").
		Columns(recordColumns...).
		Values(rec.ID, string(t), sq.Expr("?::jsonb", string(raw)), createdBy, now, now).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity insert: %w", err)
	}
	return scanRecord(r.pool.QueryRow(ctx, query, args...))
}

func (r *EntityRepo) Update(ctx context.Context, t domain.EntityType, id string, patch map[string]any) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	if patch == nil {
		patch = map[string]any{}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal %s patch: %w", t, err)
	}

	query, args, err := psql.Update("entity_records").
		Set("data", sq.Expr("data || ?::jsonb", string(raw))).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"entity_type": string(t), "id": id}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entity update: %w", err)
	}
	return scanRecord(r.pool.QueryRow(ctx, query, args...))
}

func (r *EntityRepo) Delete(ctx context.Context, t domain.EntityType, id string) error {
	if err := entity.CheckType(t); err != nil {
		return err
	}
	query, args, err := psql.Delete("entity_records").
		Where(sq.Eq{"entity_type": string(t), "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build entity delete: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t, id, err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func joinColumns() string {
	return strings.Join(recordColumns, ", ")
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var (
		rec  domain.Record
		et   string
		data []byte
	)
	err := row.Scan(&rec.ID, &et, &data, &rec.CreatedBy, &rec.CreatedDate, &rec.UpdatedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity record: %w", err)
	}
	rec.EntityType = domain.EntityType(et)
	rec.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode entity data: %w", err)
		}
	}
	return &rec, nil
}
