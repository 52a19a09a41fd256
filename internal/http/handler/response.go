package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"crm-api/internal/entity"
	"crm-api/internal/http/httperr"
	"crm-api/internal/integrations/baas"
	"crm-api/internal/observability/logger"
	"crm-api/internal/service"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// SuccessResponse is the envelope of every 2xx JSON body.
type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{OK: true, Data: data})
}

// decodeJSON reads a single JSON value from the body. It writes the 400 itself
// and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "request body too large")
		case errors.Is(err, io.EOF):
			httperr.BadRequest400(w, ctx, httperr.ErrCodeMissingParameter, "request body is required")
		default:
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "request body must be valid JSON")
		}
		return false
	}
	if dec.More() {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "request body must contain a single JSON value")
		return false
	}
	return true
}

// handleServiceError maps service errors onto the error envelope.
func handleServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	var verr *service.ValidationError
	var upstream *baas.APIError

	switch {
	case errors.As(err, &verr):
		httperr.BadRequest400WithFields(w, ctx, validationCode(verr), verr.Message, verr.Fields)
	case errors.Is(err, service.ErrUnauthenticated):
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeMissingAuthorization, "authentication required")
	case errors.Is(err, service.ErrSelfEscalation):
		httperr.Forbidden403(w, ctx, httperr.ErrCodeSelfEscalation, "you cannot change your own permissions")
	case errors.Is(err, service.ErrForbidden):
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrUnknownEntityType):
		httperr.WriteError(w, ctx, http.StatusNotFound, httperr.ErrCodeUnknownEntityType, "unknown entity type")
	case errors.Is(err, service.ErrUnknownResource):
		httperr.BadRequest400(w, ctx, httperr.ErrCodeUnknownResource, "unknown permission resource")
	case errors.Is(err, service.ErrUserNotFound):
		httperr.NotFound404(w, ctx, "user not found")
	case errors.Is(err, service.ErrOverrideNotFound):
		httperr.NotFound404(w, ctx, "no permission override for this resource")
	case errors.Is(err, service.ErrNotFound):
		httperr.NotFound404(w, ctx, "record not found")
	case errors.Is(err, entity.ErrInvalidSort), errors.Is(err, entity.ErrInvalidPredicate):
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, err.Error())
	case errors.As(err, &upstream):
		logger.SetRootError(ctx, err)
		logger.GetLogger(ctx).Error(ctx, "entity backend failed",
			logger.Module("http"),
			logger.Action("upstream"),
			zap.Int("upstream_status", upstream.Status),
			zap.Error(err),
		)
		httperr.WriteError(w, ctx, http.StatusBadGateway, httperr.ErrCodeUpstreamError, "entity backend unavailable")
	default:
		logger.SetRootError(ctx, err)
		httperr.InternalError500(w, ctx, err.Error())
	}
}

func validationCode(verr *service.ValidationError) string {
	switch {
	case errors.Is(verr, service.ErrInvalidCascade):
		return httperr.ErrCodeInvalidCascade
	case errors.Is(verr, service.ErrWrongPassword):
		return httperr.ErrCodeWrongPassword
	case errors.Is(verr, service.ErrWeakPassword):
		return httperr.ErrCodeWeakPassword
	}
	return httperr.ErrCodeValidationError
}
