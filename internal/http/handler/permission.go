package handler

import (
	"net/http"
	"strings"

	"crm-api/internal/domain"
	"crm-api/internal/permission"
	"crm-api/internal/service"

	"github.com/go-chi/chi/v5"
)

type PermissionHandler struct {
	service *service.PermissionService
}

func NewPermissionHandler(service *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{service: service}
}

// GetUserPermissions handles GET /v1/users/{userId}/permissions
func (h *PermissionHandler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	perms, err := h.service.UserPermissions(ctx, sess, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, perms)
}

// SetOverride handles PUT /v1/users/{userId}/permissions/{resource}
func (h *PermissionHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	var req domain.SetOverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	override, err := h.service.SetOverride(ctx, sess, chi.URLParam(r, "userId"), resourceParam(r), req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, override)
}

// ResetOverride handles DELETE /v1/users/{userId}/permissions/{resource}
func (h *PermissionHandler) ResetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	if err := h.service.ResetOverride(ctx, sess, chi.URLParam(r, "userId"), resourceParam(r)); err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func resourceParam(r *http.Request) domain.Resource {
	return domain.Resource(strings.ToLower(chi.URLParam(r, "resource")))
}
