package handler

import (
	"net/http"

	"crm-api/internal/domain"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/service"
)

type SessionHandler struct {
	permissions *service.PermissionService
	accounts    *service.AccountService
}

func NewSessionHandler(permissions *service.PermissionService, accounts *service.AccountService) *SessionHandler {
	return &SessionHandler{permissions: permissions, accounts: accounts}
}

// EffectivePermissions is the body of GET /v1/me/permissions.
type EffectivePermissions struct {
	Superuser   bool                             `json:"superuser"`
	Permissions map[domain.Resource]domain.Grant `json:"permissions"`
}

// Me handles GET /v1/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	me, err := h.permissions.Me(sess)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, me)
}

// MyPermissions handles GET /v1/me/permissions
func (h *SessionHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	me, err := h.permissions.Me(sess)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, EffectivePermissions{Superuser: me.Superuser, Permissions: me.Permissions})
}

// ChangePassword handles POST /v1/me/password
func (h *SessionHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(ctx, sess, req); err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	logger.GetLogger(ctx).Debug(ctx, "password changed",
		logger.Module("http"),
		logger.Action("change_password"),
	)
	w.WriteHeader(http.StatusNoContent)
}
