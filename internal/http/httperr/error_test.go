package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-api/internal/observability/logger"
	"crm-api/internal/observability/requestid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	ctx := logger.SetLoggerInContext(context.Background(), logger.NewNop())
	return requestid.SetRequestID(ctx, "req_test")
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	require.NotNil(t, response.Error)
	return response
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, ctx context.Context)
		status int
		code   string
	}{
		{
			name: "401 Unauthorized",
			write: func(w http.ResponseWriter, ctx context.Context) {
				Unauthorized401(w, ctx, ErrCodeInvalidToken, "invalid token provided")
			},
			status: http.StatusUnauthorized,
			code:   ErrCodeInvalidToken,
		},
		{
			name: "403 Forbidden",
			write: func(w http.ResponseWriter, ctx context.Context) {
				Forbidden403(w, ctx, ErrCodeForbidden, "crm:delete required")
			},
			status: http.StatusForbidden,
			code:   ErrCodeForbidden,
		},
		{
			name: "400 Bad Request",
			write: func(w http.ResponseWriter, ctx context.Context) {
				BadRequest400(w, ctx, ErrCodeInvalidLimit, "limit must be between 1 and 500")
			},
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidLimit,
		},
		{
			name: "404 Not Found",
			write: func(w http.ResponseWriter, ctx context.Context) {
				NotFound404(w, ctx, "record not found")
			},
			status: http.StatusNotFound,
			code:   ErrCodeNotFound,
		},
		{
			name: "409 Conflict",
			write: func(w http.ResponseWriter, ctx context.Context) {
				Conflict409(w, ctx, ErrCodeIdempotencyPending, "request in progress")
			},
			status: http.StatusConflict,
			code:   ErrCodeIdempotencyPending,
		},
		{
			name: "429 Too Many Requests",
			write: func(w http.ResponseWriter, ctx context.Context) {
				TooManyRequests429(w, ctx, "slow down")
			},
			status: http.StatusTooManyRequests,
			code:   ErrCodeRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr, testContext())

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			response := decode(t, rr)
			assert.False(t, response.OK)
			assert.Equal(t, tt.code, response.Error.Code)
			assert.Empty(t, response.Error.Fields)
		})
	}
}

func TestWriteErrorWithFields(t *testing.T) {
	rr := httptest.NewRecorder()
	fields := map[string]string{
		"targetWorkflowId": "is required",
		"targetStage":      "is required",
	}

	BadRequest400WithFields(rr, testContext(), ErrCodeInvalidCascade, "invalid workflow deletion request", fields)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	response := decode(t, rr)
	assert.Equal(t, fields, response.Error.Fields)
}

func TestInternalError500_HidesMessage(t *testing.T) {
	t.Setenv("APP_ENV", "prod")

	rr := httptest.NewRecorder()
	InternalError500(rr, testContext(), "pq: connection refused to 10.0.0.3")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	response := decode(t, rr)
	assert.Equal(t, ErrCodeInternalError, response.Error.Code)
	assert.Equal(t, "Internal Server Error", response.Error.Message)
	assert.Empty(t, response.Error.ErrorID)
}

func TestInternalError500_ExposesRequestIDInDev(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	rr := httptest.NewRecorder()
	InternalError(rr, testContext())

	response := decode(t, rr)
	assert.Equal(t, "req_test", response.Error.ErrorID)
}
