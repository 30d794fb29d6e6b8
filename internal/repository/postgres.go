package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/seccore/internal/models"
)

const queryTimeout = 5 * time.Second

// PostgresRepository backs all three collections with PostgreSQL.
// Uniqueness of (identifier, action) and of session tokens is enforced by
// the schema; ON CONFLICT upserts provide the atomicity the limiter needs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) GetRateLimit(ctx context.Context, identifier string, action models.Action) (*models.RateLimitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT identifier, action, attempts, last_attempt_at, blocked_until
		FROM rate_limits
		WHERE identifier = $1 AND action = $2
	`

	var rec models.RateLimitRecord
	err := r.pool.QueryRow(ctx, query, identifier, string(action)).Scan(
		&rec.Identifier, &rec.Action, &rec.Attempts, &rec.LastAttemptAt, &rec.BlockedUntil,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRateLimitNotFound
		}
		return nil, fmt.Errorf("failed to get rate limit record: %w", err)
	}

	return &rec, nil
}

func (r *PostgresRepository) UpsertRateLimit(ctx context.Context, rec *models.RateLimitRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO rate_limits (identifier, action, attempts, last_attempt_at, blocked_until)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identifier, action)
		DO UPDATE SET attempts = $3, last_attempt_at = $4, blocked_until = $5
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Identifier, string(rec.Action), rec.Attempts, rec.LastAttemptAt, rec.BlockedUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rate limit record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DeleteRateLimits(ctx context.Context, identifier string, action models.Action) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var err error
	if action != "" {
		_, err = r.pool.Exec(ctx,
			`DELETE FROM rate_limits WHERE identifier = $1 AND action = $2`,
			identifier, string(action))
	} else {
		_, err = r.pool.Exec(ctx,
			`DELETE FROM rate_limits WHERE identifier = $1`, identifier)
	}
	if err != nil {
		return fmt.Errorf("failed to delete rate limit records: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`DELETE FROM rate_limits WHERE blocked_until IS NOT NULL AND blocked_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blocks: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`DELETE FROM rate_limits WHERE last_attempt_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale rate limit records: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (r *PostgresRepository) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var detailsJSON []byte
	var err error
	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, user_id, action, details, ip_address, user_agent,
			success, error_message, signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		event.ID, event.UserID, string(event.Action), detailsJSON,
		event.IPAddress, event.UserAgent, event.Success, event.Error,
		event.Signature, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

func (r *PostgresRepository) QueryAuditEvents(ctx context.Context, filter *models.AuditFilter) ([]*models.AuditEvent, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := ""
	args := []interface{}{}
	addClause := func(clause string, value interface{}) {
		args = append(args, value)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}

	if filter.UserID != "" {
		addClause("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		addClause("action = $%d", string(filter.Action))
	}
	if filter.StartDate != nil {
		addClause("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		addClause("created_at <= $%d", *filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	// Secondary sort on id (uuidv7, time-ordered) keeps pagination stable
	// for events sharing a created_at.
	query := "SELECT id, user_id, action, details, ip_address, user_agent, success, error_message, signature, created_at FROM audit_events " +
		where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*filter.Limit)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		var event models.AuditEvent
		var detailsJSON []byte
		err := rows.Scan(
			&event.ID, &event.UserID, &event.Action, &detailsJSON,
			&event.IPAddress, &event.UserAgent, &event.Success, &event.Error,
			&event.Signature, &event.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, total, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO sessions (id, token, user_id, created_at, updated_at, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.Token, session.UserID,
		session.CreatedAt, session.UpdatedAt, session.ExpiresAt,
		session.IPAddress, session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getSession(ctx, `token = $1`, token)
}

func (r *PostgresRepository) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getSession(ctx, `id = $1`, id)
}

func (r *PostgresRepository) getSession(ctx context.Context, cond string, arg interface{}) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, token, user_id, created_at, updated_at, expires_at, ip_address, user_agent
		FROM sessions
		WHERE ` + cond

	var session models.Session
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&session.ID, &session.Token, &session.UserID,
		&session.CreatedAt, &session.UpdatedAt, &session.ExpiresAt,
		&session.IPAddress, &session.UserAgent,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (r *PostgresRepository) ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, token, user_id, created_at, updated_at, expires_at, ip_address, user_agent
		FROM sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var session models.Session
		err := rows.Scan(
			&session.ID, &session.Token, &session.UserID,
			&session.CreatedAt, &session.UpdatedAt, &session.ExpiresAt,
			&session.IPAddress, &session.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (r *PostgresRepository) TouchSession(ctx context.Context, token string, updatedAt, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`UPDATE sessions SET updated_at = $2, expires_at = $3 WHERE token = $1`,
		token, updatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteSessionsExcept(ctx context.Context, userID, keepToken string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND token <> $2`,
		userID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return int(result.RowsAffected()), nil
}
