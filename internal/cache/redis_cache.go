package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	SentAt time.Time `json:"sentAt"`
}

func key(scheduleID, date string) string {
	return fmt.Sprintf("sched:%s:%s", scheduleID, date)
}

func (c *RedisCache) MarkSent(ctx context.Context, scheduleID, date string, sentAt time.Time) error {
	b, err := json.Marshal(sentValue{SentAt: sentAt.UTC()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(scheduleID, date), b, c.ttl).Err()
}

func (c *RedisCache) AlreadySent(ctx context.Context, scheduleID, date string) (bool, error) {
	err := c.rdb.Get(ctx, key(scheduleID, date)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
