package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/seccore/internal/models"
)

// InMemoryRepository is a development and test backend. All three
// collections live behind one RWMutex.
type InMemoryRepository struct {
	mu              sync.RWMutex
	rateLimits      map[string]*models.RateLimitRecord
	auditEvents     []*models.AuditEvent
	sessionsByToken map[string]*models.Session
	sessionsByID    map[string]*models.Session
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rateLimits:      make(map[string]*models.RateLimitRecord),
		auditEvents:     make([]*models.AuditEvent, 0),
		sessionsByToken: make(map[string]*models.Session),
		sessionsByID:    make(map[string]*models.Session),
	}
}

func rateLimitKey(identifier string, action models.Action) string {
	return identifier + "\x00" + string(action)
}

func (r *InMemoryRepository) GetRateLimit(ctx context.Context, identifier string, action models.Action) (*models.RateLimitRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.rateLimits[rateLimitKey(identifier, action)]
	if !ok {
		return nil, ErrRateLimitNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *InMemoryRepository) UpsertRateLimit(ctx context.Context, rec *models.RateLimitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	r.rateLimits[rateLimitKey(rec.Identifier, rec.Action)] = &cp
	return nil
}

func (r *InMemoryRepository) DeleteRateLimits(ctx context.Context, identifier string, action models.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if action != "" {
		delete(r.rateLimits, rateLimitKey(identifier, action))
		return nil
	}
	for key, rec := range r.rateLimits {
		if rec.Identifier == identifier {
			delete(r.rateLimits, key)
		}
	}
	return nil
}

func (r *InMemoryRepository) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rec := range r.rateLimits {
		if rec.BlockedUntil != nil && !rec.BlockedUntil.After(now) {
			delete(r.rateLimits, key)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemoryRepository) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rec := range r.rateLimits {
		if rec.LastAttemptAt.Before(cutoff) {
			delete(r.rateLimits, key)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemoryRepository) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *event
	r.auditEvents = append(r.auditEvents, &cp)
	return nil
}

func matchesFilter(event *models.AuditEvent, filter *models.AuditFilter) bool {
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if filter.Action != "" && event.Action != filter.Action {
		return false
	}
	if filter.StartDate != nil && event.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && event.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

func (r *InMemoryRepository) QueryAuditEvents(ctx context.Context, filter *models.AuditFilter) ([]*models.AuditEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.AuditEvent, 0)
	for _, event := range r.auditEvents {
		if matchesFilter(event, filter) {
			matched = append(matched, event)
		}
	}

	// Stable sort keeps insertion order for events sharing a timestamp.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * filter.Limit
		if offset >= total {
			matched = matched[:0]
		} else {
			end := offset + filter.Limit
			if end > total {
				end = total
			}
			matched = matched[offset:end]
		}
	}

	out := make([]*models.AuditEvent, len(matched))
	for i, event := range matched {
		cp := *event
		out[i] = &cp
	}
	return out, total, nil
}

func (r *InMemoryRepository) CreateSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *session
	r.sessionsByToken[session.Token] = &cp
	r.sessionsByID[session.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessionsByToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *InMemoryRepository) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessionsByID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *InMemoryRepository) ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*models.Session, 0)
	for _, session := range r.sessionsByID {
		if session.UserID == userID {
			cp := *session
			sessions = append(sessions, &cp)
		}
	}
	return sessions, nil
}

func (r *InMemoryRepository) TouchSession(ctx context.Context, token string, updatedAt, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessionsByToken[token]
	if !ok {
		return ErrSessionNotFound
	}
	session.UpdatedAt = updatedAt
	session.ExpiresAt = expiresAt
	return nil
}

func (r *InMemoryRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessionsByID[id]
	if !ok {
		return ErrSessionNotFound
	}
	delete(r.sessionsByToken, session.Token)
	delete(r.sessionsByID, id)
	return nil
}

func (r *InMemoryRepository) DeleteSessionsExcept(ctx context.Context, userID, keepToken string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessionsByID {
		if session.UserID == userID && session.Token != keepToken {
			delete(r.sessionsByToken, session.Token)
			delete(r.sessionsByID, id)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemoryRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessionsByID {
		if session.Expired(now) {
			delete(r.sessionsByToken, session.Token)
			delete(r.sessionsByID, id)
			removed++
		}
	}
	return removed, nil
}
