package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"crm-api/internal/observability/logger"
	"crm-api/internal/observability/requestid"

	"go.uber.org/zap"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	OK    bool         `json:"ok"`
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	ErrorID string            `json:"error_id,omitempty"`
}

// Error codes for 401 Unauthorized (authentication failures)
const (
	ErrCodeMissingAuthorization = "MISSING_AUTHORIZATION"
	ErrCodeInvalidScheme        = "INVALID_SCHEME"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeInvalidIssuer        = "INVALID_ISSUER"
	ErrCodeInvalidAudience      = "INVALID_AUDIENCE"
)

// Error codes for 403 Forbidden (authenticated but insufficient permissions)
const (
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeSelfEscalation = "SELF_ESCALATION"
)

// Error codes for 4xx client errors
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeMissingParameter   = "MISSING_PARAMETER"
	ErrCodeInvalidLimit       = "INVALID_LIMIT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeUnknownEntityType  = "UNKNOWN_ENTITY_TYPE"
	ErrCodeUnknownResource    = "UNKNOWN_RESOURCE"
	ErrCodeInvalidCascade     = "INVALID_CASCADE"
	ErrCodeWrongPassword      = "WRONG_PASSWORD"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeIdempotencyPending = "IDEMPOTENCY_IN_PROGRESS"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// Error codes for 5xx
const (
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUpstreamError = "UPSTREAM_ERROR"
)

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	WriteErrorWithFields(w, ctx, status, code, message, nil)
}

// WriteErrorWithFields writes a standardized error response with field-level details
func WriteErrorWithFields(w http.ResponseWriter, ctx context.Context, status int, code, message string, fields map[string]string) {
	log := logger.GetLogger(ctx)

	pairs := make([]zap.Field, 0, len(fields)+5)
	pairs = append(pairs,
		logger.Module("http"),
		logger.Action("error_response"),
		zap.Int("status_code", status),
		zap.String("error_code", code),
		zap.String("message", message),
	)
	for k, v := range fields {
		pairs = append(pairs, zap.String("field_"+k, v))
	}
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", pairs...)
	} else {
		log.Warn(ctx, "request rejected", pairs...)
	}

	write(w, status, ErrorResponse{
		OK: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	})
}

func write(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Unauthorized401 writes a 401 Unauthorized response
func Unauthorized401(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusUnauthorized, code, message)
}

// Forbidden403 writes a 403 Forbidden response
func Forbidden403(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusForbidden, code, message)
}

// NotFound404 writes a 404 Not Found response
func NotFound404(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest400 writes a 400 Bad Request response
func BadRequest400(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusBadRequest, code, message)
}

// BadRequest400WithFields writes a 400 Bad Request response with field-level errors
func BadRequest400WithFields(w http.ResponseWriter, ctx context.Context, code, message string, fields map[string]string) {
	WriteErrorWithFields(w, ctx, http.StatusBadRequest, code, message, fields)
}

// Conflict409 writes a 409 Conflict response
func Conflict409(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusConflict, code, message)
}

// TooManyRequests429 writes a 429 response
func TooManyRequests429(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// InternalError500 writes a 500 Internal Server Error response. The message
// is logged only; clients get a generic text.
func InternalError500(w http.ResponseWriter, ctx context.Context, message string) {
	reqID := requestid.GetRequestID(ctx)

	logger.GetLogger(ctx).Error(ctx, "internal server error",
		logger.Module("http"),
		logger.Action("error_response"),
		zap.String("message", message),
	)

	response := ErrorResponse{
		OK: false,
		Error: &ErrorDetail{
			Code:    ErrCodeInternalError,
			Message: "Internal Server Error",
		},
	}
	if os.Getenv("APP_ENV") == "dev" {
		response.Error.ErrorID = reqID
	}
	write(w, http.StatusInternalServerError, response)
}

// InternalError writes a generic 500.
func InternalError(w http.ResponseWriter, ctx context.Context) {
	InternalError500(w, ctx, "internal server error")
}
