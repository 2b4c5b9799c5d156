package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps one hash per (user, persona) with a field per window size,
// so a single DEL invalidates every cached size.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a cache with the given TTL (default 5m).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID int64, personaID uint, maxPairs int) (Window, bool, error) {
	raw, err := c.client.HGet(ctx, key(userID, personaID), strconv.Itoa(maxPairs)).Result()
	if errors.Is(err, redis.Nil) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var win Window
	if err := json.Unmarshal([]byte(raw), &win); err != nil {
		return Window{}, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return win, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int64, personaID uint, maxPairs int, win Window) error {
	payload, err := json.Marshal(win)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	k := key(userID, personaID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k, strconv.Itoa(maxPairs), payload)
	pipe.Expire(ctx, k, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64, personaID uint) error {
	if err := c.client.Del(ctx, key(userID, personaID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func key(userID int64, personaID uint) string {
	return fmt.Sprintf("history:window:%d:%d", userID, personaID)
}
