package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/seccore/internal/handlers"
	"github.com/telhawk-systems/seccore/internal/middleware"
)

// NewRouter constructs a ServeMux with the security API routes registered.
func NewRouter(h *handlers.SecurityHandler) http.Handler {
	mux := http.NewServeMux()

	// Rate limit endpoints
	mux.HandleFunc("POST /api/v1/limits/check", h.CheckLimit)
	mux.HandleFunc("POST /api/v1/limits/record", h.RecordAttempt)
	mux.HandleFunc("POST /api/v1/limits/reset", h.ResetLimit)

	// Audit trail endpoints
	mux.HandleFunc("GET /api/v1/audit/events", h.QueryAuditEvents)
	mux.HandleFunc("GET /api/v1/audit/export", h.ExportAuditEvents)
	mux.HandleFunc("POST /api/v1/events", h.LogEvent)

	// Session endpoints
	mux.HandleFunc("POST /api/v1/sessions/login", h.Login)
	mux.HandleFunc("POST /api/v1/sessions/logout", h.Logout)
	mux.HandleFunc("POST /api/v1/sessions/touch", h.TouchSession)
	mux.HandleFunc("POST /api/v1/sessions/revoke-others", h.RevokeOtherSessions)
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.RevokeSession)

	// Health check and metrics (public)
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.RequestContext(mux))
}
