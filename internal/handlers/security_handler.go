package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/seccore/internal/httputil"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/service"
	"github.com/telhawk-systems/seccore/internal/session"
)

// SessionCookie carries the caller's session credential when no
// Authorization header is present.
const SessionCookie = "seccore_session"

type SecurityHandler struct {
	service *service.SecurityService
}

func NewSecurityHandler(service *service.SecurityService) *SecurityHandler {
	return &SecurityHandler{
		service: service,
	}
}

// callerCredential extracts the session credential from the Authorization
// header (Bearer scheme) or, failing that, the session cookie.
func callerCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if cred, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return cred
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		httputil.WriteError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidOperation):
		httputil.WriteError(w, http.StatusBadRequest, "cannot revoke the current session")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

type limitRequest struct {
	Identifier string `json:"identifier"`
	Action     string `json:"action"`
	Error      string `json:"error,omitempty"`
}

func (h *SecurityHandler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identifier == "" || req.Action == "" {
		httputil.WriteError(w, http.StatusBadRequest, "identifier and action are required")
		return
	}

	result, err := h.service.CheckAttempt(r.Context(), req.Identifier, models.Action(req.Action))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Allowed {
		httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"allowed":             false,
			"retry_after_seconds": result.RetryAfter,
			"message":             result.RetryMessage(),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"allowed": true,
	})
}

func (h *SecurityHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identifier == "" || req.Action == "" {
		httputil.WriteError(w, http.StatusBadRequest, "identifier and action are required")
		return
	}

	if err := h.service.RecordFailure(r.Context(), req.Identifier, models.Action(req.Action), req.Error); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SecurityHandler) ResetLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identifier == "" {
		httputil.WriteError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	// Empty action clears every action for the identifier.
	if err := h.service.ResetLimit(r.Context(), req.Identifier, models.Action(req.Action)); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func auditFilterFromQuery(r *http.Request) (*models.AuditFilter, error) {
	q := r.URL.Query()
	filter := &models.AuditFilter{
		UserID: q.Get("user_id"),
		Action: models.Action(q.Get("action")),
		Page:   httputil.ParseIntParam(q.Get("page"), 1),
		Limit:  httputil.ParseIntParam(q.Get("limit"), 50),
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.New("invalid start_date, expected RFC3339")
		}
		filter.StartDate = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.New("invalid end_date, expected RFC3339")
		}
		filter.EndDate = &t
	}
	return filter, nil
}

func (h *SecurityHandler) QueryAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.QueryAudit(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *SecurityHandler) ExportAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := models.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = models.ExportJSON
	}

	out, err := h.service.ExportAudit(r.Context(), filter, format)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format {
	case models.ExportCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-events.json"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

func (h *SecurityHandler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var event models.AuditEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Log never fails; validation problems are recorded as metrics.
	h.service.LogEvent(r.Context(), &event)

	w.WriteHeader(http.StatusAccepted)
}

type loginRequest struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
}

// Login records a successful authentication performed by an upstream
// credential provider and mints a session for the user.
func (h *SecurityHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Identifier == "" {
		httputil.WriteError(w, http.StatusBadRequest, "user_id and identifier are required")
		return
	}

	sess, err := h.service.LoginSucceeded(r.Context(), req.UserID, req.Identifier)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The token is only returned here, at creation time.
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": sess.ID,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *SecurityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), callerCredential(r)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SecurityHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context(), callerCredential(r))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (h *SecurityHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	if targetID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := h.service.RevokeSession(r.Context(), callerCredential(r), targetID); err != nil {
		writeSessionError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SecurityHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.RevokeOtherSessions(r.Context(), callerCredential(r))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"revoked_count": count,
	})
}

func (h *SecurityHandler) TouchSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.TouchSession(r.Context(), callerCredential(r)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SecurityHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
