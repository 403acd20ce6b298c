package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/infrastructure/storage/postgres"
)

func init() { gin.SetMode(gin.TestMode) }

type stubValidator map[string]*appctx.UserContext

func (v stubValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	if u, ok := v[token]; ok {
		return u, nil
	}
	return nil, errors.New("bad token")
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Trace(), ErrorHandler(), Recovery())
	r.Use(mw...)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthAndRequireRole(t *testing.T) {
	v := stubValidator{
		"op":     {UserID: "u-op", Roles: []string{appctx.RoleOperator}},
		"viewer": {UserID: "u-view"},
	}
	r := newEngine(Auth(v))
	r.POST("/cleanup", RequireRole(appctx.RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetUserID(c.Request.Context()))
	})

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, apperror.CodeUnauthorized},
		{"wrong scheme", "Basic op", http.StatusUnauthorized, apperror.CodeUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, apperror.CodeUnauthorized},
		{"missing role", "Bearer viewer", http.StatusForbidden, apperror.CodeForbidden},
		{"operator", "Bearer op", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cleanup", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code == "" {
				assert.Equal(t, "u-op", w.Body.String())
				return
			}
			body := decode(t, w)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["traceId"])
		})
	}
}

func TestErrorHandler_HidesInternalCause(t *testing.T) {
	r := newEngine()
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("pq: connection refused")) })
	r.GET("/panic", func(c *gin.Context) { panic("nil map") })

	for _, path := range []string{"/boom", "/panic"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Equal(t, problemContentType, w.Header().Get("Content-Type"), path)
		assert.NotContains(t, w.Body.String(), "connection refused")
		assert.Equal(t, apperror.CodeInternal, decode(t, w)["code"])
	}
}

func TestErrorHandler_AppError(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) { _ = c.Error(apperror.NewPercentageMismatch("99.5")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperror.CodePercentageMismatch, body["code"])
	assert.Equal(t, map[string]any{"sum": "99.5"}, body["details"])
	assert.Equal(t, w.Header().Get(HeaderTraceID), body["traceId"])
	assert.NotContains(t, body, "retryable")
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestErrorHandler_RecomputeConflictIsRetryable(t *testing.T) {
	r := newEngine()
	r.POST("/lots/:id/recompute", func(c *gin.Context) {
		_ = c.Error(apperror.NewRecomputeConflict("lot", c.Param("id")))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/lots/L1/recompute", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decode(t, w)
	assert.Equal(t, apperror.CodeRecomputeConflict, body["code"])
	assert.Equal(t, true, body["retryable"])
}

type memIdempotency struct {
	owned    map[string]string
	replays  map[string]*postgres.IdempotencyReplay
	complete map[string]int
	failed   map[string]int
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{
		owned:    map[string]string{},
		replays:  map[string]*postgres.IdempotencyReplay{},
		complete: map[string]int{},
		failed:   map[string]int{},
	}
}

func (m *memIdempotency) AcquireKey(_ context.Context, key, _, _, hash string) (*postgres.IdempotencyReplay, error) {
	if r, ok := m.replays[key]; ok {
		if m.owned[key] != hash {
			return nil, apperror.NewIdempotencyMismatch(key)
		}
		return r, nil
	}
	m.owned[key] = hash
	return nil, nil
}

func (m *memIdempotency) CompleteKey(_ context.Context, key string, status int, ct string, resp any) error {
	b, _ := json.Marshal(resp)
	m.replays[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: ct, Body: b}
	m.complete[key]++
	return nil
}

func (m *memIdempotency) FailKey(_ context.Context, key string, status int, ct string, resp any) error {
	b, _ := json.Marshal(resp)
	m.replays[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: ct, Body: b}
	m.failed[key]++
	return nil
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	store := newMemIdempotency()
	calls := 0
	r := newEngine(Idempotency(store))
	r.POST("/records", func(c *gin.Context) {
		calls++
		resp := gin.H{"n": calls}
		CompleteIdempotency(c, http.StatusCreated, "application/json", resp)
		c.JSON(http.StatusCreated, resp)
	})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
		req.Header.Set(HeaderIdempotencyKey, "k-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send(`{"amount":"10"}`)
	second := send(`{"amount":"10"}`)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	mismatch := send(`{"amount":"11"}`)
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_StoresFailure(t *testing.T) {
	store := newMemIdempotency()
	r := newEngine(Idempotency(store))
	r.POST("/sales", func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientQuantity("lot", 5, 2))
	})

	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "k-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, store.failed["k-2"])
	assert.Equal(t, http.StatusUnprocessableEntity, store.replays["k-2"].StatusCode)
}

func TestIdempotency_IgnoresReadsAndKeyless(t *testing.T) {
	store := newMemIdempotency()
	r := newEngine(Idempotency(store))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Empty(t, store.owned)
}
