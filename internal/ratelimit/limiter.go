// Package ratelimit implements a sliding-window rate limiter with
// escalating lockouts over a persistent counter store.
//
// Check and RecordAttempt are intentionally separate store round-trips and
// not transactional: two concurrent failed attempts can both observe "not
// yet blocked" and both get recorded, letting one extra attempt through
// past the nominal threshold. This is an accepted approximation; the
// upside is that every attempt is recorded even when the action ends up
// blocked, so attempt history stays accurate.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/seccore/internal/clock"
	"github.com/telhawk-systems/seccore/internal/metrics"
	"github.com/telhawk-systems/seccore/internal/models"
	"github.com/telhawk-systems/seccore/internal/repository"
)

// Limiter decides admit/deny per (identifier, action) using a per-action
// policy table. Store failures always propagate: silently admitting when
// the store is down would defeat the limiter.
type Limiter struct {
	store    repository.RateLimitStore
	policies map[models.Action]models.RateLimitPolicy
	clock    clock.Clock
}

func NewLimiter(store repository.RateLimitStore, policies map[models.Action]models.RateLimitPolicy, clk clock.Clock) *Limiter {
	if policies == nil {
		policies = map[models.Action]models.RateLimitPolicy{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Limiter{store: store, policies: policies, clock: clk}
}

// Check evaluates the limit for (identifier, action). A denial is a normal
// result, never an error. Actions without a policy entry are not limited.
func (l *Limiter) Check(ctx context.Context, identifier string, action models.Action) (*models.CheckResult, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier required")
	}

	policy, ok := l.policies[action]
	if !ok {
		return &models.CheckResult{Allowed: true}, nil
	}

	now := l.clock.Now()

	rec, err := l.store.GetRateLimit(ctx, identifier, action)
	if errors.Is(err, repository.ErrRateLimitNotFound) {
		return &models.CheckResult{Allowed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		metrics.RateLimitDenials.WithLabelValues(string(action)).Inc()
		return &models.CheckResult{
			Allowed:    false,
			RetryAfter: ceilSeconds(rec.BlockedUntil.Sub(now)),
		}, nil
	}

	if rec.LastAttemptAt.Before(now.Add(-policy.Window)) {
		rec.Attempts = 0
		rec.BlockedUntil = nil
		if err := l.store.UpsertRateLimit(ctx, rec); err != nil {
			return nil, err
		}
		return &models.CheckResult{Allowed: true}, nil
	}

	if rec.Attempts >= policy.MaxAttempts {
		blockedUntil := now.Add(policy.BlockDuration)
		rec.BlockedUntil = &blockedUntil
		if err := l.store.UpsertRateLimit(ctx, rec); err != nil {
			return nil, err
		}
		metrics.RateLimitDenials.WithLabelValues(string(action)).Inc()
		return &models.CheckResult{
			Allowed:    false,
			RetryAfter: int(policy.BlockDuration / time.Second),
		}, nil
	}

	return &models.CheckResult{Allowed: true}, nil
}

// RecordAttempt increments the counter for (identifier, action). It never
// evaluates or sets blocks; blocking is decided by the next Check.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier string, action models.Action) error {
	if identifier == "" {
		return fmt.Errorf("identifier required")
	}

	now := l.clock.Now()

	rec, err := l.store.GetRateLimit(ctx, identifier, action)
	if errors.Is(err, repository.ErrRateLimitNotFound) {
		rec = &models.RateLimitRecord{Identifier: identifier, Action: action}
	} else if err != nil {
		return err
	}

	rec.Attempts++
	rec.LastAttemptAt = now

	if err := l.store.UpsertRateLimit(ctx, rec); err != nil {
		return err
	}

	metrics.RateLimitAttempts.WithLabelValues(string(action)).Inc()
	return nil
}

// Reset clears failure history for the identifier: one action, or all of
// them when action is empty. Used after an action succeeds (e.g. a
// completed password change clears password_reset counters).
func (l *Limiter) Reset(ctx context.Context, identifier string, action models.Action) error {
	if identifier == "" {
		return fmt.Errorf("identifier required")
	}
	return l.store.DeleteRateLimits(ctx, identifier, action)
}

// Cleanup removes records with lapsed blocks and records past the retention
// horizon. Run periodically, not per-request.
func (l *Limiter) Cleanup(ctx context.Context) (int, error) {
	now := l.clock.Now()

	expired, err := l.store.DeleteExpiredBlocks(ctx, now)
	if err != nil {
		return 0, err
	}

	stale, err := l.store.DeleteRateLimitsBefore(ctx, now.Add(-models.RateLimitRetention))
	if err != nil {
		return expired, err
	}

	total := expired + stale
	if total > 0 {
		metrics.CleanupDeletions.WithLabelValues("rate_limits").Add(float64(total))
	}
	return total, nil
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
