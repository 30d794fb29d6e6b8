package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/seccore/internal/audit"
	"github.com/telhawk-systems/seccore/internal/clock"
	"github.com/telhawk-systems/seccore/internal/handlers"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/ratelimit"
	"github.com/telhawk-systems/seccore/internal/repository"
	"github.com/telhawk-systems/seccore/internal/service"
	"github.com/telhawk-systems/seccore/internal/session"
)

func newTestRouter(t *testing.T) (http.Handler, *service.SecurityService) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := ratelimit.NewLimiter(repo, map[models.Action]models.RateLimitPolicy{
		models.ActionLoginFailed: {MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
	}, clk)
	auditSvc := audit.NewService(repo, audit.NewEventSigner("test-secret"), clk, nil)
	sessions := session.NewManager(repo, clk, 7*24*time.Hour)
	svc := service.NewSecurityService(limiter, auditSvc, sessions, nil)
	return NewRouter(handlers.NewSecurityHandler(svc)), svc
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/limits/check", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLoginFlowCapturesClientContext(t *testing.T) {
	router, svc := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"user_id": "user-1", "identifier": "a@x.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "router-test/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	infos, err := svc.ListSessions(context.Background(), resp.Token)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "203.0.113.9", infos[0].IPAddress)
	assert.Equal(t, "router-test/1.0", infos[0].UserAgent)
}

func TestRevokeSessionRoute(t *testing.T) {
	router, svc := newTestRouter(t)
	ctx := context.Background()

	current, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)
	other, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+other.ID, nil)
	req.Header.Set("Authorization", "Bearer "+current.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	infos, err := svc.ListSessions(ctx, current.Token)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
