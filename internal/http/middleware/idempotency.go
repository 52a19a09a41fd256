package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"
	"crm-api/internal/repo"

	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// IdempotencyStore persists replayable responses per user and key hash.
type IdempotencyStore interface {
	CheckKey(ctx context.Context, userID, keyHash string) (*repo.CachedResponse, error)
	StoreResult(ctx context.Context, req repo.StoredRequest) error
}

type idempotencyOptions struct {
	omitPayload bool
}

type IdempotencyOption func(*idempotencyOptions)

// OmitRequestPayload keeps the request body out of the store (credentials).
func OmitRequestPayload() IdempotencyOption {
	return func(o *idempotencyOptions) { o.omitPayload = true }
}

// IdempotencyMiddleware replays the stored response of a POST/PATCH that
// carries an already seen Idempotency-Key. Only 2xx responses are stored.
// Must run after authentication: keys are scoped to the caller.
func IdempotencyMiddleware(store IdempotencyStore, opts ...IdempotencyOption) func(http.Handler) http.Handler {
	var o idempotencyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := logger.GetLogger(ctx)

			if len(key) > maxIdempotencyKeyLen {
				httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "idempotency key must be 255 characters or less")
				return
			}

			userID := logger.GetUserIDFromContext(ctx)
			if userID == "" {
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "authentication required")
				return
			}

			keyHash := repo.HashKey(key)
			w.Header().Set("X-Idempotency-Key-Hash", keyHash)

			cached, err := store.CheckKey(ctx, userID, keyHash)
			if err != nil {
				logger.SetRootError(ctx, err)
				log.Error(ctx, "failed to check idempotency key",
					logger.Module("idempotency"),
					logger.Action("check"),
					zap.Error(err),
				)
				httperr.InternalError(w, ctx)
				return
			}

			if cached != nil && (cached.Method != r.Method || cached.Path != r.URL.Path) {
				httperr.Conflict409(w, ctx, httperr.ErrCodeConflict, "idempotency key already used for a different request")
				return
			}

			if cached != nil {
				log.Info(ctx, "replaying cached response",
					logger.Module("idempotency"),
					logger.Action("replay"),
					zap.String("key_hash", keyHash),
					zap.Int("status", cached.Status),
				)
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			var payload []byte
			if r.Body != nil {
				payload, err = io.ReadAll(r.Body)
				if err != nil {
					httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "failed to read request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(payload))
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}

			headers := make(map[string]string)
			for _, h := range []string{"Content-Type", "Location"} {
				if v := rec.Header().Get(h); v != "" {
					headers[h] = v
				}
			}
			if o.omitPayload || !json.Valid(payload) {
				payload = nil
			}

			err = store.StoreResult(ctx, repo.StoredRequest{
				UserID:      userID,
				KeyHash:     keyHash,
				OriginalKey: key,
				Method:      r.Method,
				Path:        r.URL.Path,
				Payload:     payload,
				Response: repo.CachedResponse{
					Status:  rec.statusCode,
					Body:    rec.body.Bytes(),
					Headers: headers,
				},
			})
			if err != nil {
				// the response already went out
				log.Error(ctx, "failed to store idempotency result",
					logger.Module("idempotency"),
					logger.Action("store"),
					zap.String("key_hash", keyHash),
					zap.Error(err),
				)
				return
			}
			log.Debug(ctx, "stored idempotent response",
				logger.Module("idempotency"),
				logger.Action("store"),
				zap.String("key_hash", keyHash),
				zap.Int("status", rec.statusCode),
			)
		})
	}
}

// responseRecorder tees the response body so it can be stored.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.written {
		rr.statusCode = code
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.written {
		rr.WriteHeader(http.StatusOK)
	}
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}
