package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"carepilot/internal/ratelimit/models"
)

const redisKeyPrefix = "rl:"

// RedisBucketStore counts requests in fixed windows shared by every instance.
// Each window gets its own key, incremented and given a TTL in one MULTI.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()
	start := models.Window(now, window)
	redisKey := windowKey(key, start)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting request for %s: %w", key, err)
	}
	return models.NewResult(int(incr.Val()), limit, start, window, now), nil
}

// GetCurrentCount returns the count in the current window for a key.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := s.client.Get(ctx, windowKey(key, models.Window(s.now(), window))).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading count for %s: %w", key, err)
	}
	return n, nil
}

func windowKey(key string, start time.Time) string {
	return redisKeyPrefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}
