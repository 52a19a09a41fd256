package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"crm-api/internal/domain"
	"crm-api/internal/entity"
	"crm-api/internal/events"
	"crm-api/internal/http/handler"
	"crm-api/internal/http/httperr"
	"crm-api/internal/integrations/baas"
	"crm-api/internal/mocks"
	"crm-api/internal/observability/logger"
	"crm-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	listPattern   = "/v1/entities/{entityType}"
	recordPattern = "/v1/entities/{entityType}/{id}"
)

func newEntityHandler(t *testing.T) (*handler.EntityHandler, *mocks.MockClient, *mocks.MockAuditLogger) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockClient(ctrl)
	audit := mocks.NewMockAuditLogger(ctrl)
	svc := service.NewEntityService(store, &events.Recorder{}, audit, logger.NewNop())
	return handler.NewEntityHandler(svc), store, audit
}

func crmUser(pt domain.PermissionType) map[domain.Resource]domain.Grant {
	return map[domain.Resource]domain.Grant{domain.ResourceCRM: grant(domain.ScopeTotal, pt)}
}

func TestEntityHandler_List_FiltersAndDisplays(t *testing.T) {
	h, store, _ := newEntityHandler(t)

	store.EXPECT().
		Filter(gomock.Any(), domain.EntityDeal, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.EntityType, predicate map[string]any, opts domain.ListOptions) ([]domain.Record, error) {
			assert.Equal(t, map[string]any{"status": "open"}, predicate)
			assert.Equal(t, "-deal_value", opts.Sort)
			assert.Equal(t, 5, opts.Limit)
			return []domain.Record{{
				ID:         "deal-1",
				EntityType: domain.EntityDeal,
				Data:       map[string]any{"deal_value": 1234.5, "status": "open"},
			}}, nil
		})

	rec := serve(t, http.MethodGet, listPattern, h.List,
		"/v1/entities/Deal?status=open&sort=-deal_value&limit=5&display=true", "",
		userSession("u1", crmUser(domain.PermissionView)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeOK[domain.RecordListResponse](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "R$ 1.234,50", body.Data[0].Display["deal_value"])
}

func TestEntityHandler_List_EmptyIsArray(t *testing.T) {
	h, store, _ := newEntityHandler(t)
	store.EXPECT().Filter(gomock.Any(), domain.EntityLead, gomock.Nil(), gomock.Any()).Return(nil, nil)

	rec := serve(t, http.MethodGet, listPattern, h.List, "/v1/entities/Lead", "",
		userSession("u1", crmUser(domain.PermissionView)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"data":{"data":[],"count":0}}`, rec.Body.String())
}

func TestEntityHandler_List_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		grants map[domain.Resource]domain.Grant
		status int
		code   string
	}{
		{"invalid limit", "/v1/entities/Lead?limit=abc", crmUser(domain.PermissionView), http.StatusBadRequest, httperr.ErrCodeInvalidLimit},
		{"limit above max", "/v1/entities/Lead?limit=501", crmUser(domain.PermissionView), http.StatusBadRequest, httperr.ErrCodeInvalidLimit},
		{"unknown entity type", "/v1/entities/Spaceship", crmUser(domain.PermissionFull), http.StatusNotFound, httperr.ErrCodeUnknownEntityType},
		{"no crm permission", "/v1/entities/Lead", nil, http.StatusForbidden, httperr.ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newEntityHandler(t)
			rec := serve(t, http.MethodGet, listPattern, h.List, tt.path, "", userSession("u1", tt.grants))
			requireError(t, rec, tt.status, tt.code)
		})
	}
}

func TestEntityHandler_List_NoSession(t *testing.T) {
	h, _, _ := newEntityHandler(t)
	rec := serve(t, http.MethodGet, listPattern, h.List, "/v1/entities/Lead", "", nil)
	requireError(t, rec, http.StatusUnauthorized, httperr.ErrCodeMissingAuthorization)
}

func TestEntityHandler_Create(t *testing.T) {
	h, store, audit := newEntityHandler(t)
	owner := "u1"

	store.EXPECT().List(gomock.Any(), domain.EntityCustomField, gomock.Any()).Return(nil, nil)
	store.EXPECT().
		Create(gomock.Any(), domain.EntityLead, gomock.Any(), "u1").
		DoAndReturn(func(_ context.Context, _ domain.EntityType, data map[string]any, actorID string) (*domain.Record, error) {
			assert.Equal(t, "11144477735", data["cpf"])
			return &domain.Record{
				ID:          "lead-9",
				EntityType:  domain.EntityLead,
				Data:        data,
				CreatedBy:   &owner,
				CreatedDate: time.Now(),
				UpdatedDate: time.Now(),
			}, nil
		})
	audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	rec := serve(t, http.MethodPost, listPattern, h.Create, "/v1/entities/Lead",
		`{"name":"Ana","cpf":"111.444.777-35"}`,
		userSession("u1", crmUser(domain.PermissionCreateView)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/v1/entities/Lead/lead-9", rec.Header().Get("Location"))
	created := decodeOK[domain.Record](t, rec)
	assert.Equal(t, "lead-9", created.ID)
}

func TestEntityHandler_Create_InvalidCPF(t *testing.T) {
	h, store, _ := newEntityHandler(t)
	store.EXPECT().List(gomock.Any(), domain.EntityCustomField, gomock.Any()).Return(nil, nil)

	rec := serve(t, http.MethodPost, listPattern, h.Create, "/v1/entities/Lead",
		`{"name":"Ana","cpf":"111.111.111-11"}`,
		userSession("u1", crmUser(domain.PermissionCreateView)))

	detail := requireError(t, rec, http.StatusBadRequest, httperr.ErrCodeValidationError)
	assert.Equal(t, "invalid CPF", detail.Fields["cpf"])
}

func TestEntityHandler_Create_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty", "", httperr.ErrCodeMissingParameter},
		{"malformed", `{"name":`, httperr.ErrCodeInvalidFormat},
		{"two values", `{} {}`, httperr.ErrCodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newEntityHandler(t)
			rec := serve(t, http.MethodPost, listPattern, h.Create, "/v1/entities/Lead", tt.body,
				userSession("u1", crmUser(domain.PermissionFull)))
			requireError(t, rec, http.StatusBadRequest, tt.code)
		})
	}
}

func TestEntityHandler_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h, store, _ := newEntityHandler(t)
		store.EXPECT().Get(gomock.Any(), domain.EntityCompany, "c-1").
			Return(&domain.Record{ID: "c-1", EntityType: domain.EntityCompany, Data: map[string]any{"cnpj": "11222333000181"}}, nil)

		rec := serve(t, http.MethodGet, recordPattern, h.Get, "/v1/entities/Company/c-1?display=1", "",
			userSession("u1", crmUser(domain.PermissionView)))

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeOK[domain.Record](t, rec)
		assert.Equal(t, "11.222.333/0001-81", got.Display["cnpj"])
	})

	t.Run("not found", func(t *testing.T) {
		h, store, _ := newEntityHandler(t)
		store.EXPECT().Get(gomock.Any(), domain.EntityCompany, "missing").Return(nil, entity.ErrNotFound)

		rec := serve(t, http.MethodGet, recordPattern, h.Get, "/v1/entities/Company/missing", "",
			userSession("u1", crmUser(domain.PermissionView)))
		requireError(t, rec, http.StatusNotFound, httperr.ErrCodeNotFound)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h, store, _ := newEntityHandler(t)
		store.EXPECT().Get(gomock.Any(), domain.EntityCompany, "c-1").
			Return(nil, &baas.APIError{Status: http.StatusServiceUnavailable, Body: "maintenance"})

		rec := serve(t, http.MethodGet, recordPattern, h.Get, "/v1/entities/Company/c-1", "",
			userSession("u1", crmUser(domain.PermissionView)))
		requireError(t, rec, http.StatusBadGateway, httperr.ErrCodeUpstreamError)
	})
}

func TestEntityHandler_Update(t *testing.T) {
	h, store, audit := newEntityHandler(t)

	store.EXPECT().Update(gomock.Any(), domain.EntityDeal, "deal-1", map[string]any{"status": "won"}).
		Return(&domain.Record{ID: "deal-1", EntityType: domain.EntityDeal, Data: map[string]any{"status": "won"}}, nil)
	audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

	rec := serve(t, http.MethodPatch, recordPattern, h.Update, "/v1/entities/Deal/deal-1", `{"status":"won"}`,
		userSession("u1", crmUser(domain.PermissionEditCreateView)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeOK[domain.Record](t, rec)
	assert.Equal(t, "won", got.Data["status"])
}

func TestEntityHandler_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		h, store, audit := newEntityHandler(t)
		store.EXPECT().Delete(gomock.Any(), domain.EntityDeal, "deal-1").Return(nil)
		audit.EXPECT().LogAction(gomock.Any(), gomock.Any()).Return(nil)

		rec := serve(t, http.MethodDelete, recordPattern, h.Delete, "/v1/entities/Deal/deal-1", "",
			userSession("u1", crmUser(domain.PermissionFull)))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("edit tier cannot delete", func(t *testing.T) {
		h, _, _ := newEntityHandler(t)
		rec := serve(t, http.MethodDelete, recordPattern, h.Delete, "/v1/entities/Deal/deal-1", "",
			userSession("u1", crmUser(domain.PermissionEditCreateView)))
		requireError(t, rec, http.StatusForbidden, httperr.ErrCodeForbidden)
	})
}
