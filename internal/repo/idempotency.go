package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyTTL is how long a stored response is replayed.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRepo stores responses of POST/PATCH requests keyed by user and Idempotency-Key.
type IdempotencyRepo struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	Method  string
	Path    string
	Status  int
	Body    json.RawMessage
	Headers map[string]string
}

// StoredRequest is what gets persisted after the first execution.
type StoredRequest struct {
	UserID      string
	KeyHash     string
	OriginalKey string
	Method      string
	Path        string
	Payload     json.RawMessage
	Response    CachedResponse
}

// HashKey returns the hex SHA-256 of an idempotency key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CheckKey returns the cached response, or nil when the key is unknown or expired.
func (r *IdempotencyRepo) CheckKey(ctx context.Context, userID, keyHash string) (*CachedResponse, error) {
	const query = `
		SELECT request_method, request_path, response_status, response_body::text, response_headers::text
		FROM idempotency_keys
		WHERE user_id = $1 AND key_hash = $2 AND expires_at > NOW()
	`

	var (
		method  string
		path    string
		status  int
		body    *string
		headers *string
	)
	err := r.pool.QueryRow(ctx, query, userID, keyHash).Scan(&method, &path, &status, &body, &headers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	resp := &CachedResponse{Method: method, Path: path, Status: status}
	if body != nil {
		resp.Body = json.RawMessage(*body)
	}
	if headers != nil {
		if err := json.Unmarshal([]byte(*headers), &resp.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}
	return resp, nil
}

// StoreResult persists the first response for the key. Later writes for the same key are ignored.
func (r *IdempotencyRepo) StoreResult(ctx context.Context, req StoredRequest) error {
	headers, err := json.Marshal(req.Response.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	const query = `
		INSERT INTO idempotency_keys (
			user_id, key_hash, original_key, request_method, request_path,
			request_payload, response_status, response_body, response_headers, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9::jsonb, $10)
		ON CONFLICT (user_id, key_hash) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		req.UserID, req.KeyHash, req.OriginalKey, req.Method, req.Path,
		jsonText(req.Payload), req.Response.Status, jsonText(req.Response.Body), string(headers),
		time.Now().Add(IdempotencyTTL),
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotency result: %w", err)
	}
	return nil
}

// CleanupExpired removes expired keys and returns how many were deleted.
func (r *IdempotencyRepo) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// jsonText passes JSON as text so it survives the simple query protocol; non-JSON becomes NULL.
func jsonText(raw json.RawMessage) *string {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	s := string(raw)
	return &s
}
