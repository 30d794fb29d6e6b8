package models

import (
	"fmt"
	"time"
)

// Action identifies a category of rate-limited or audited operation.
type Action string

const (
	ActionLogin             Action = "login"
	ActionLogout            Action = "logout"
	ActionLoginFailed       Action = "login_failed"
	ActionPasswordReset     Action = "password_reset"
	ActionSessionRevoked    Action = "session_revoked"
	ActionSessionsRevokedAll Action = "sessions_revoked_all"
)

// RateLimitRecord tracks attempts for one (identifier, action) pair.
// There is exactly one record per pair; the store's upsert keeps it that way.
type RateLimitRecord struct {
	Identifier    string     `json:"identifier"`
	Action        Action     `json:"action"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
}

// RateLimitPolicy configures the sliding window for one action.
type RateLimitPolicy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// CheckResult is the outcome of a rate-limit check. A denied check is a
// normal return value, not an error.
type CheckResult struct {
	Allowed    bool `json:"allowed"`
	RetryAfter int  `json:"retry_after_seconds,omitempty"`
}

// RetryMessage renders a denial as user-facing text.
func (r *CheckResult) RetryMessage() string {
	if r.Allowed {
		return ""
	}
	minutes := (r.RetryAfter + 59) / 60
	if minutes <= 1 {
		return "too many attempts, try again in 1 minute"
	}
	return fmt.Sprintf("too many attempts, try again in %d minutes", minutes)
}

// RateLimitRetention is how long a rate-limit record is kept after its last
// attempt, independent of block state.
const RateLimitRetention = 24 * time.Hour
