// Package service exposes the security core as one facade: rate-limit
// checks, audit logging, and session lifecycle, composed the way the
// external auth/HTTP layer consumes them.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/telhawk-systems/seccore/internal/audit"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/ratelimit"
	"github.com/telhawk-systems/seccore/internal/session"
)

type SecurityService struct {
	limiter  *ratelimit.Limiter
	audit    *audit.Service
	sessions *session.Manager
	logger   *slog.Logger
}

func NewSecurityService(limiter *ratelimit.Limiter, auditSvc *audit.Service, sessions *session.Manager, logger *slog.Logger) *SecurityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityService{
		limiter:  limiter,
		audit:    auditSvc,
		sessions: sessions,
		logger:   logger,
	}
}

// CheckAttempt asks the limiter whether an auth-sensitive action may
// proceed. A denial is a normal result; the external credential check runs
// only after an allowed result.
func (s *SecurityService) CheckAttempt(ctx context.Context, identifier string, action models.Action) (*models.CheckResult, error) {
	return s.limiter.Check(ctx, identifier, action)
}

// RecordFailure is called after the external credential check fails: the
// attempt is counted against the identifier and the failure is audited.
// The audit userID is the identifier (email) since no account resolved.
func (s *SecurityService) RecordFailure(ctx context.Context, identifier string, action models.Action, errMsg string) error {
	if err := s.limiter.RecordAttempt(ctx, identifier, action); err != nil {
		return err
	}
	s.audit.LogAuthEvent(ctx, identifier, action, false, errMsg)
	return nil
}

// LoginSucceeded opens a session for userID, clears the identifier's
// failure history, and audits the login.
func (s *SecurityService) LoginSucceeded(ctx context.Context, userID, identifier string) (*models.Session, error) {
	sess, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Reset(ctx, identifier, models.ActionLoginFailed); err != nil {
		// The login already happened; a reset failure only means stale
		// counters, which the window lapse will clear.
		s.logger.Warn("failed to reset rate limit after login",
			slog.String("error", err.Error()))
	}

	s.audit.Log(ctx, &models.AuditEvent{
		UserID:  userID,
		Action:  models.ActionLogin,
		Success: true,
		Details: map[string]interface{}{"session_id": sess.ID},
	})
	return sess, nil
}

// Logout ends the caller's own session and audits it.
func (s *SecurityService) Logout(ctx context.Context, callerCredential string) error {
	sess, err := s.sessions.Logout(ctx, callerCredential)
	if err != nil {
		return err
	}
	s.audit.LogAuthEvent(ctx, sess.UserID, models.ActionLogout, true, "")
	return nil
}

// ResetLimit clears rate-limit history for an identifier, e.g. after a
// completed password change. An empty action clears every action.
func (s *SecurityService) ResetLimit(ctx context.Context, identifier string, action models.Action) error {
	return s.limiter.Reset(ctx, identifier, action)
}

// LogEvent records an arbitrary security event; best-effort like all audit
// writes.
func (s *SecurityService) LogEvent(ctx context.Context, event *models.AuditEvent) {
	s.audit.Log(ctx, event)
}

func (s *SecurityService) QueryAudit(ctx context.Context, filter *models.AuditFilter) (*models.AuditPage, error) {
	return s.audit.Query(ctx, filter)
}

func (s *SecurityService) ExportAudit(ctx context.Context, filter *models.AuditFilter, format models.ExportFormat) (string, error) {
	return s.audit.Export(ctx, filter, format)
}

func (s *SecurityService) ListSessions(ctx context.Context, callerCredential string) ([]*models.SessionInfo, error) {
	return s.sessions.List(ctx, callerCredential)
}

// RevokeSession revokes one of the caller's other sessions and audits the
// revocation under the caller's user.
func (s *SecurityService) RevokeSession(ctx context.Context, callerCredential, targetID string) error {
	caller, err := s.sessions.Resolve(ctx, callerCredential)
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, callerCredential, targetID); err != nil {
		return err
	}

	s.audit.Log(ctx, &models.AuditEvent{
		UserID:  caller.UserID,
		Action:  models.ActionSessionRevoked,
		Success: true,
		Details: map[string]interface{}{"session_id": targetID},
	})
	return nil
}

// RevokeOtherSessions revokes every session of the caller's user except
// the current one and audits the count.
func (s *SecurityService) RevokeOtherSessions(ctx context.Context, callerCredential string) (int, error) {
	caller, err := s.sessions.Resolve(ctx, callerCredential)
	if err != nil {
		return 0, err
	}

	count, err := s.sessions.RevokeAllOthers(ctx, callerCredential)
	if err != nil {
		return 0, err
	}

	s.audit.Log(ctx, &models.AuditEvent{
		UserID:  caller.UserID,
		Action:  models.ActionSessionsRevokedAll,
		Success: true,
		Details: map[string]interface{}{"count": count},
	})
	return count, nil
}

// TouchSession performs sliding renewal of the caller's session.
func (s *SecurityService) TouchSession(ctx context.Context, callerCredential string) error {
	return s.sessions.Touch(ctx, callerCredential)
}

// Cleanup runs one sweep over lapsed rate-limit blocks, stale rate-limit
// records, and expired sessions.
func (s *SecurityService) Cleanup(ctx context.Context) {
	if removed, err := s.limiter.Cleanup(ctx); err != nil {
		s.logger.Error("rate limit cleanup failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		s.logger.Debug("rate limit cleanup", slog.Int("removed", removed))
	}

	if removed, err := s.sessions.CleanupExpired(ctx); err != nil {
		s.logger.Error("session cleanup failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		s.logger.Debug("session cleanup", slog.Int("removed", removed))
	}
}

// RunCleanupLoop sweeps on the given interval until ctx is cancelled.
// Sweeps run concurrently with request handling; the deletes they issue
// are conditional, so a record refreshed mid-sweep is left alone.
func (s *SecurityService) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}
