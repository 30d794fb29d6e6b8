package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/seccore/internal/models"
)

func setupTestRedis(t *testing.T) *RedisRateLimitStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimitStoreWithClient(client)
}

func TestRedisGetRateLimitMissing(t *testing.T) {
	store := setupTestRedis(t)

	_, err := store.GetRateLimit(context.Background(), "a@x.com", models.ActionLoginFailed)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
}

func TestRedisUpsertAndGetRateLimit(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	blockedUntil := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	rec := &models.RateLimitRecord{
		Identifier:    "a@x.com",
		Action:        models.ActionLoginFailed,
		Attempts:      3,
		LastAttemptAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		BlockedUntil:  &blockedUntil,
	}
	require.NoError(t, store.UpsertRateLimit(ctx, rec))

	got, err := store.GetRateLimit(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.True(t, got.LastAttemptAt.Equal(rec.LastAttemptAt))
	require.NotNil(t, got.BlockedUntil)
	assert.True(t, got.BlockedUntil.Equal(blockedUntil))
}

func TestRedisDeleteSingleAction(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "a@x.com", Action: models.ActionLoginFailed, Attempts: 1, LastAttemptAt: now,
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "a@x.com", Action: models.ActionPasswordReset, Attempts: 1, LastAttemptAt: now,
	}))

	require.NoError(t, store.DeleteRateLimits(ctx, "a@x.com", models.ActionLoginFailed))

	_, err := store.GetRateLimit(ctx, "a@x.com", models.ActionLoginFailed)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
	_, err = store.GetRateLimit(ctx, "a@x.com", models.ActionPasswordReset)
	assert.NoError(t, err)
}

func TestRedisDeleteAllActions(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "a@x.com", Action: models.ActionLoginFailed, Attempts: 1, LastAttemptAt: now,
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "a@x.com", Action: models.ActionPasswordReset, Attempts: 1, LastAttemptAt: now,
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "b@x.com", Action: models.ActionLoginFailed, Attempts: 1, LastAttemptAt: now,
	}))

	require.NoError(t, store.DeleteRateLimits(ctx, "a@x.com", ""))

	_, err := store.GetRateLimit(ctx, "a@x.com", models.ActionLoginFailed)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
	_, err = store.GetRateLimit(ctx, "a@x.com", models.ActionPasswordReset)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
	_, err = store.GetRateLimit(ctx, "b@x.com", models.ActionLoginFailed)
	assert.NoError(t, err)
}

func TestRedisDeleteExpiredBlocks(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	lapsed := now.Add(-time.Minute)
	active := now.Add(time.Hour)

	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "lapsed@x.com", Action: models.ActionLoginFailed,
		Attempts: 5, LastAttemptAt: now, BlockedUntil: &lapsed,
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "active@x.com", Action: models.ActionLoginFailed,
		Attempts: 5, LastAttemptAt: now, BlockedUntil: &active,
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "unblocked@x.com", Action: models.ActionLoginFailed,
		Attempts: 2, LastAttemptAt: now,
	}))

	removed, err := store.DeleteExpiredBlocks(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetRateLimit(ctx, "lapsed@x.com", models.ActionLoginFailed)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
	_, err = store.GetRateLimit(ctx, "active@x.com", models.ActionLoginFailed)
	assert.NoError(t, err)
	_, err = store.GetRateLimit(ctx, "unblocked@x.com", models.ActionLoginFailed)
	assert.NoError(t, err)
}

func TestRedisDeleteRateLimitsBefore(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "stale@x.com", Action: models.ActionLoginFailed,
		Attempts: 1, LastAttemptAt: now.Add(-25 * time.Hour),
	}))
	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "fresh@x.com", Action: models.ActionLoginFailed,
		Attempts: 1, LastAttemptAt: now,
	}))

	removed, err := store.DeleteRateLimitsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetRateLimit(ctx, "stale@x.com", models.ActionLoginFailed)
	assert.ErrorIs(t, err, ErrRateLimitNotFound)
	_, err = store.GetRateLimit(ctx, "fresh@x.com", models.ActionLoginFailed)
	assert.NoError(t, err)
}

func TestRedisWriteSetsRetentionTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisRateLimitStoreWithClient(client)
	ctx := context.Background()

	require.NoError(t, store.UpsertRateLimit(ctx, &models.RateLimitRecord{
		Identifier: "a@x.com", Action: models.ActionLoginFailed,
		Attempts: 1, LastAttemptAt: time.Now(),
	}))

	ttl := mr.TTL("ratelimit:a@x.com:login_failed")
	assert.Equal(t, models.RateLimitRetention, ttl)
}

func TestRedisDropsUnreadableRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisRateLimitStoreWithClient(client)
	ctx := context.Background()

	require.NoError(t, mr.Set("ratelimit:corrupt@x.com:login_failed", "not-json"))

	removed, err := store.DeleteExpiredBlocks(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRedisLimiterBackedByStore(t *testing.T) {
	// The store satisfies the same contract the limiter expects from the
	// primary repository.
	store := setupTestRedis(t)
	ctx := context.Background()

	rec := &models.RateLimitRecord{
		Identifier:    "a@x.com",
		Action:        models.ActionLoginFailed,
		Attempts:      5,
		LastAttemptAt: time.Now(),
	}
	require.NoError(t, store.UpsertRateLimit(ctx, rec))

	got, err := store.GetRateLimit(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	got.Attempts++
	require.NoError(t, store.UpsertRateLimit(ctx, got))

	final, err := store.GetRateLimit(ctx, "a@x.com", models.ActionLoginFailed)
	require.NoError(t, err)
	assert.Equal(t, 6, final.Attempts)
}
