package handler

import (
	"net/http"
	"strconv"

	"crm-api/internal/domain"
	"crm-api/internal/http/httperr"
	"crm-api/internal/permission"
	"crm-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// query keys that are not record filters
var listParams = map[string]bool{"sort": true, "limit": true, "display": true}

type EntityHandler struct {
	service *service.EntityService
}

func NewEntityHandler(service *service.EntityService) *EntityHandler {
	return &EntityHandler{service: service}
}

// List handles GET /v1/entities/{entityType}
//
// Any query key besides sort, limit and display is an equality filter on the
// record data (string values).
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)
	query := r.URL.Query()

	opts := domain.ListOptions{Sort: query.Get("sort")}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > domain.MaxListLimit {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidLimit, "limit must be between 1 and "+strconv.Itoa(domain.MaxListLimit))
			return
		}
		opts.Limit = limit
	}
	opts.Normalize()

	var predicate map[string]any
	for key, values := range query {
		if listParams[key] || len(values) == 0 {
			continue
		}
		if predicate == nil {
			predicate = make(map[string]any)
		}
		predicate[key] = values[0]
	}

	records, err := h.service.Filter(ctx, sess, entityTypeParam(r), predicate, opts)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	if displayRequested(r) {
		records = service.WithDisplay(records)
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeOK(w, http.StatusOK, domain.RecordListResponse{Data: records, Count: len(records)})
}

// Get handles GET /v1/entities/{entityType}/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	rec, err := h.service.Get(ctx, sess, entityTypeParam(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, h.present(r, rec))
}

// Create handles POST /v1/entities/{entityType}
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	var data map[string]any
	if !decodeJSON(w, r, &data) {
		return
	}

	rec, err := h.service.Create(ctx, sess, entityTypeParam(r), data)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.Header().Set("Location", "/v1/entities/"+string(rec.EntityType)+"/"+rec.ID)
	writeOK(w, http.StatusCreated, h.present(r, rec))
}

// Update handles PATCH /v1/entities/{entityType}/{id}
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	var patch map[string]any
	if !decodeJSON(w, r, &patch) {
		return
	}

	rec, err := h.service.Update(ctx, sess, entityTypeParam(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeOK(w, http.StatusOK, h.present(r, rec))
}

// Delete handles DELETE /v1/entities/{entityType}/{id}
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := permission.FromContext(ctx)

	if err := h.service.Delete(ctx, sess, entityTypeParam(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) present(r *http.Request, rec *domain.Record) *domain.Record {
	if displayRequested(r) {
		out := service.WithDisplay([]domain.Record{*rec})
		return &out[0]
	}
	return rec
}

func entityTypeParam(r *http.Request) domain.EntityType {
	return domain.EntityType(chi.URLParam(r, "entityType"))
}

func displayRequested(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("display"))
	return v
}
