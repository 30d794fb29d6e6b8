package repository

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/seccore/internal/models"
)

var (
	ErrRateLimitNotFound = errors.New("rate limit record not found")
	ErrSessionNotFound   = errors.New("session not found")
)

// RateLimitStore persists attempt counters. Upsert is the atomicity
// primitive: exactly one record exists per (identifier, action).
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, identifier string, action models.Action) (*models.RateLimitRecord, error)
	UpsertRateLimit(ctx context.Context, rec *models.RateLimitRecord) error
	// DeleteRateLimits removes the record for (identifier, action), or every
	// record for the identifier when action is empty.
	DeleteRateLimits(ctx context.Context, identifier string, action models.Action) error
	// DeleteExpiredBlocks removes records whose block has already passed.
	DeleteExpiredBlocks(ctx context.Context, now time.Time) (int, error)
	// DeleteRateLimitsBefore enforces the retention horizon.
	DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditStore is append-only; events are never updated or deleted here.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
	// QueryAuditEvents returns matching events sorted by created_at
	// descending (stable within a user) and the total match count.
	QueryAuditEvents(ctx context.Context, filter *models.AuditFilter) ([]*models.AuditEvent, int, error)
}

// SessionStore persists login sessions keyed by opaque token.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error)
	TouchSession(ctx context.Context, token string, updatedAt, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	// DeleteSessionsExcept removes every session owned by userID except the
	// one with keepToken, in a single conditional delete. Returns the count.
	DeleteSessionsExcept(ctx context.Context, userID, keepToken string) (int, error)
	// DeleteExpiredSessions removes sessions past expiry as of now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Repository is the full persistence surface of the core.
type Repository interface {
	RateLimitStore
	AuditStore
	SessionStore
}
