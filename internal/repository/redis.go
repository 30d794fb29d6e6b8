package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/seccore/internal/models"
)

// RedisRateLimitStore keeps rate-limit records in Redis as JSON values.
// The 24h retention horizon is applied as a key TTL refreshed on every
// write, so retention runs from the last attempt rather than the first.
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(redisURL string) (*RedisRateLimitStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisRateLimitStore{client: client}, nil
}

// NewRedisRateLimitStoreWithClient wraps an existing client (tests).
func NewRedisRateLimitStoreWithClient(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Close() error {
	return s.client.Close()
}

func redisRateLimitKey(identifier string, action models.Action) string {
	return "ratelimit:" + identifier + ":" + string(action)
}

func (s *RedisRateLimitStore) GetRateLimit(ctx context.Context, identifier string, action models.Action) (*models.RateLimitRecord, error) {
	data, err := s.client.Get(ctx, redisRateLimitKey(identifier, action)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRateLimitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit record: %w", err)
	}

	var rec models.RateLimitRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rate limit record: %w", err)
	}

	return &rec, nil
}

func (s *RedisRateLimitStore) UpsertRateLimit(ctx context.Context, rec *models.RateLimitRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal rate limit record: %w", err)
	}

	key := redisRateLimitKey(rec.Identifier, rec.Action)
	if err := s.client.Set(ctx, key, data, models.RateLimitRetention).Err(); err != nil {
		return fmt.Errorf("failed to upsert rate limit record: %w", err)
	}

	return nil
}

func (s *RedisRateLimitStore) DeleteRateLimits(ctx context.Context, identifier string, action models.Action) error {
	if action != "" {
		if err := s.client.Del(ctx, redisRateLimitKey(identifier, action)).Err(); err != nil {
			return fmt.Errorf("failed to delete rate limit record: %w", err)
		}
		return nil
	}

	keys, err := s.scanKeys(ctx, "ratelimit:"+identifier+":*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete rate limit records: %w", err)
	}
	return nil
}

// DeleteExpiredBlocks walks all records and removes those whose block has
// passed. Deletes are re-checked per key so a record refreshed between scan
// and delete survives.
func (s *RedisRateLimitStore) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int, error) {
	return s.deleteWhere(ctx, func(rec *models.RateLimitRecord) bool {
		return rec.BlockedUntil != nil && !rec.BlockedUntil.After(now)
	})
}

// DeleteRateLimitsBefore is a safety net on top of the key TTL.
func (s *RedisRateLimitStore) DeleteRateLimitsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteWhere(ctx, func(rec *models.RateLimitRecord) bool {
		return rec.LastAttemptAt.Before(cutoff)
	})
}

func (s *RedisRateLimitStore) deleteWhere(ctx context.Context, expired func(*models.RateLimitRecord) bool) (int, error) {
	keys, err := s.scanKeys(ctx, "ratelimit:*")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read rate limit record: %w", err)
		}

		var rec models.RateLimitRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			// Unreadable record: drop it rather than carry it forever.
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete rate limit record: %w", err)
			}
			removed++
			continue
		}

		if expired(&rec) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete rate limit record: %w", err)
			}
			removed++
		}
	}

	return removed, nil
}

func (s *RedisRateLimitStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate limit keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
