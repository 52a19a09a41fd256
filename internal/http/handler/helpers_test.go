package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crm-api/internal/domain"
	"crm-api/internal/http/httperr"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve routes one request through chi so URL params resolve like in the router.
func serve(t *testing.T, method, pattern string, h http.HandlerFunc, path, body string, sess *permission.Session) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := logger.SetLoggerInContext(req.Context(), logger.NewNop())
	if sess != nil {
		ctx = permission.WithSession(ctx, sess)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func grant(scope domain.Scope, pt domain.PermissionType) domain.Grant {
	return domain.Grant{Scope: scope, PermissionType: pt}
}

func userSession(userID string, g map[domain.Resource]domain.Grant) *permission.Session {
	return permission.NewSession(&domain.User{ID: userID, Email: userID + "@crm.example.com", Role: domain.RoleSales}, g, false)
}

type okBody[T any] struct {
	OK   bool `json:"ok"`
	Data T    `json:"data"`
}

func decodeOK[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body okBody[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.True(t, body.OK)
	return body.Data
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) *httperr.ErrorDetail {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var body httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	require.NotNil(t, body.Error)
	assert.Equal(t, code, body.Error.Code)
	return body.Error
}
