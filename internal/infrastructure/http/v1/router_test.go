package v1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/id"
	"boigordo/internal/domain/reconcile"
	"boigordo/internal/infrastructure/http/v1/handlers"
	"boigordo/pkg/logger"
)

type tokens map[string]*appctx.UserContext

func (t tokens) ValidateToken(s string) (*appctx.UserContext, error) {
	if u, ok := t[s]; ok {
		return u, nil
	}
	return nil, errors.New("invalid")
}

type fakeReconcile struct{ cleaned []id.ID }

func (f *fakeReconcile) Scan(context.Context) (*reconcile.Report, error) {
	return &reconcile.Report{}, nil
}

func (f *fakeReconcile) Cleanup(_ context.Context, ids []id.ID, reason string) (*reconcile.CleanupResult, error) {
	f.cleaned = ids
	return &reconcile.CleanupResult{Deleted: ids, Reason: reason}, nil
}

func TestRouter_AuthAndOperatorGuard(t *testing.T) {
	rec := &fakeReconcile{}
	r := NewRouter(RouterConfig{
		Logger: logger.Default(),
		JWTValidator: tokens{
			"viewer": {UserID: "u-1"},
			"op":     {UserID: "u-2", Roles: []string{appctx.RoleOperator}},
		},
		Health:   map[string]handlers.Pinger{},
		Services: Services{Reconcile: rec},
	})
	gin.SetMode(gin.TestMode)

	send := func(method, path, token, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/health/live", "", ""))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, "/api/v1/reconciliation-report", "", ""))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/reconciliation-report", "viewer", ""))

	target := id.New()
	body := `{"recordIds":["` + target.String() + `"],"reason":"duplicate import"}`
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/v1/reconciliation/cleanup", "viewer", body))
	assert.Nil(t, rec.cleaned)
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/reconciliation/cleanup", "op", body))
	assert.Equal(t, []id.ID{target}, rec.cleaned)

	assert.Equal(t, http.StatusNotFound, send(http.MethodGet, "/api/v1/unknown", "op", ""))
}
