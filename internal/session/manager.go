// Package session manages the lifecycle of login sessions: enumeration
// with current-session detection, scoped revocation, and expiry.
package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/seccore/internal/clock"
	"github.com/telhawk-systems/seccore/internal/httputil"
	"github.com/telhawk-systems/seccore/internal/metrics"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/repository"
)

var (
	// ErrNotAuthenticated means the presented credential resolved to no
	// live session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound covers both absent sessions and sessions owned by
	// another user, so callers cannot probe for foreign session ids.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidOperation means the operation violates an invariant, such
	// as revoking the caller's own session through the revoke path.
	ErrInvalidOperation = errors.New("invalid operation")
)

const defaultTTL = 7 * 24 * time.Hour

// Manager performs session operations scoped to the resolved caller.
// Every query and mutation filters by the caller's user id; that scoping
// is the primary security invariant of the core.
type Manager struct {
	store repository.SessionStore
	clock clock.Clock
	ttl   time.Duration
}

func NewManager(store repository.SessionStore, clk clock.Clock, ttl time.Duration) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{store: store, clock: clk, ttl: ttl}
}

// TokenFromCredential extracts the session lookup key from a cookie-style
// "token.signature" credential. The signature segment is the auth
// provider's integrity concern and is opaque here.
func TokenFromCredential(credential string) string {
	if i := strings.IndexByte(credential, '.'); i >= 0 {
		return credential[:i]
	}
	return credential
}

// Resolve maps a caller credential to its live session. Expired or unknown
// tokens report ErrNotAuthenticated.
func (m *Manager) Resolve(ctx context.Context, callerCredential string) (*models.Session, error) {
	return m.resolve(ctx, callerCredential)
}

func (m *Manager) resolve(ctx context.Context, callerCredential string) (*models.Session, error) {
	token := TokenFromCredential(callerCredential)
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	session, err := m.store.GetSessionByToken(ctx, token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(m.clock.Now()) {
		return nil, ErrNotAuthenticated
	}

	return session, nil
}

// Create opens a session for userID on successful authentication. The
// returned token is the secret the client must present; the auth provider
// appends its own signature segment before setting the cookie.
func (m *Manager) Create(ctx context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		return nil, ErrInvalidOperation
	}

	now := m.clock.Now()
	id, _ := uuid.NewV7()
	token, _ := uuid.NewV7()

	session := &models.Session{
		ID:        id.String(),
		Token:     token.String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if rc := httputil.GetRequestContext(ctx); rc != nil {
		session.IPAddress = rc.IPAddress
		session.UserAgent = rc.UserAgent
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Touch performs sliding renewal on the caller's session.
func (m *Manager) Touch(ctx context.Context, callerCredential string) error {
	session, err := m.resolve(ctx, callerCredential)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	return m.store.TouchSession(ctx, session.Token, now, now.Add(m.ttl))
}

// List returns every live session of the caller's user, newest activity
// first, with the caller's own session marked current.
func (m *Manager) List(ctx context.Context, callerCredential string) ([]*models.SessionInfo, error) {
	caller, err := m.resolve(ctx, callerCredential)
	if err != nil {
		return nil, err
	}

	sessions, err := m.store.ListSessionsByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	infos := make([]*models.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		if session.Expired(now) {
			continue
		}
		infos = append(infos, session.Info(session.Token == caller.Token))
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})

	return infos, nil
}

// Revoke deletes one of the caller's other sessions by id. Sessions owned
// by other users report ErrNotFound without revealing whether the id
// exists; the caller's own session reports ErrInvalidOperation (that path
// is a logout, not a revoke).
func (m *Manager) Revoke(ctx context.Context, callerCredential, targetID string) error {
	caller, err := m.resolve(ctx, callerCredential)
	if err != nil {
		return err
	}

	target, err := m.store.GetSessionByID(ctx, targetID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if target.UserID != caller.UserID {
		return ErrNotFound
	}
	if target.Token == caller.Token {
		return ErrInvalidOperation
	}

	if err := m.store.DeleteSession(ctx, target.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// Already gone; revocation is idempotent from here.
			return nil
		}
		return err
	}

	metrics.SessionsRevoked.Inc()
	return nil
}

// RevokeAllOthers deletes every session of the caller's user except the
// caller's own, as a single conditional delete so concurrent session
// creation cannot leave a partial revocation behind.
func (m *Manager) RevokeAllOthers(ctx context.Context, callerCredential string) (int, error) {
	caller, err := m.resolve(ctx, callerCredential)
	if err != nil {
		return 0, err
	}

	count, err := m.store.DeleteSessionsExcept(ctx, caller.UserID, caller.Token)
	if err != nil {
		return 0, err
	}

	metrics.SessionsRevoked.Add(float64(count))
	return count, nil
}

// Logout deletes the caller's own session.
func (m *Manager) Logout(ctx context.Context, callerCredential string) (*models.Session, error) {
	caller, err := m.resolve(ctx, callerCredential)
	if err != nil {
		return nil, err
	}

	if err := m.store.DeleteSession(ctx, caller.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	return caller, nil
}

// CleanupExpired removes sessions past expiry. The store delete is
// conditional on expiry, so a session renewed between read and delete
// survives.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := m.store.DeleteExpiredSessions(ctx, m.clock.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.CleanupDeletions.WithLabelValues("sessions").Add(float64(removed))
	}
	return removed, nil
}
