package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/seccore/internal/audit"
	"github.com/telhawk-systems/seccore/internal/clock"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/ratelimit"
	"github.com/telhawk-systems/seccore/internal/repository"
	"github.com/telhawk-systems/seccore/internal/session"
)

var testPolicies = map[models.Action]models.RateLimitPolicy{
	models.ActionLoginFailed: {
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 30 * time.Minute,
	},
}

func newTestSecurityService(t *testing.T) (*SecurityService, *clock.Fake) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := ratelimit.NewLimiter(repo, testPolicies, clk)
	auditSvc := audit.NewService(repo, audit.NewEventSigner("test-secret"), clk, nil)
	sessions := session.NewManager(repo, clk, 7*24*time.Hour)
	return NewSecurityService(limiter, auditSvc, sessions, nil), clk
}

func TestFailedLoginFlowBlocksAndAudits(t *testing.T) {
	svc, _ := newTestSecurityService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := svc.CheckAttempt(ctx, "a@x.com", models.ActionLoginFailed)
		require.NoError(t, err)
		require.True(t, result.Allowed)
		require.NoError(t, svc.RecordFailure(ctx, "a@x.com", models.ActionLoginFailed, "bad password"))
	}

	result, err := svc.CheckAttempt(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 1800, result.RetryAfter)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionLoginFailed})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, "a@x.com", page.Events[0].UserID)
	assert.False(t, page.Events[0].Success)
	assert.Equal(t, "bad password", page.Events[0].Error)
}

func TestLoginSucceededResetsFailuresAndAudits(t *testing.T) {
	svc, _ := newTestSecurityService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.RecordFailure(ctx, "a@x.com", models.ActionLoginFailed, "bad password"))
	}

	sess, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	// Failure history is gone, so five fresh attempts fit again
	result, err := svc.CheckAttempt(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionLogin})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "user-1", page.Events[0].UserID)
	assert.True(t, page.Events[0].Success)
	assert.Equal(t, sess.ID, page.Events[0].Details["session_id"])
}

func TestLogoutAudits(t *testing.T) {
	svc, _ := newTestSecurityService(t)
	ctx := context.Background()

	sess, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.Token))

	_, err = svc.ListSessions(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionLogout})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "user-1", page.Events[0].UserID)
}

func TestLogoutWithoutSession(t *testing.T) {
	svc, _ := newTestSecurityService(t)

	err := svc.Logout(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestRevokeSessionAudits(t *testing.T) {
	svc, _ := newTestSecurityService(t)
	ctx := context.Background()

	current, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)
	other, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, current.Token, other.ID))

	infos, err := svc.ListSessions(ctx, current.Token)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, current.ID, infos[0].ID)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionSessionRevoked})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "user-1", page.Events[0].UserID)
	assert.Equal(t, other.ID, page.Events[0].Details["session_id"])
}

func TestRevokeSessionErrorsAreNotAudited(t *testing.T) {
	svc, _ := newTestSecurityService(t)
	ctx := context.Background()

	current, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)

	err = svc.RevokeSession(ctx, current.Token, current.ID)
	assert.ErrorIs(t, err, session.ErrInvalidOperation)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionSessionRevoked})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
}

func TestRevokeOtherSessionsAuditsCount(t *testing.T) {
	svc, clk := newTestSecurityService(t)
	ctx := context.Background()

	var current *models.Session
	for i := 0; i < 4; i++ {
		sess, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
		require.NoError(t, err)
		clk.Advance(time.Second)
		if i == 3 {
			current = sess
		}
	}

	count, err := svc.RevokeOtherSessions(ctx, current.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := svc.QueryAudit(ctx, &models.AuditFilter{Action: models.ActionSessionsRevokedAll})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	// JSON round-trips through the store can widen ints; compare loosely
	assert.EqualValues(t, 3, page.Events[0].Details["count"])
}

func TestTouchSession(t *testing.T) {
	svc, clk := newTestSecurityService(t)
	ctx := context.Background()

	sess, err := svc.LoginSucceeded(ctx, "user-1", "a@x.com")
	require.NoError(t, err)

	clk.Advance(6 * 24 * time.Hour)
	require.NoError(t, svc.TouchSession(ctx, sess.Token))

	clk.Advance(2 * 24 * time.Hour)
	infos, err := svc.ListSessions(ctx, sess.Token)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestCleanupSweepsLimitsAndSessions(t *testing.T) {
	svc, clk := newTestSecurityService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordFailure(ctx, "a@x.com", models.ActionLoginFailed, "bad password"))
	sess, err := svc.LoginSucceeded(ctx, "user-1", "b@x.com")
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)
	svc.Cleanup(ctx)

	_, err = svc.ListSessions(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	result, err := svc.CheckAttempt(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
