package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottleRepository implements fixed-window counters in Redis.
type ThrottleRepository struct {
	client *redis.Client
	prefix string
}

// NewThrottleRepository constructs a throttle store. A nil client disables throttling.
func NewThrottleRepository(client *redis.Client, prefix string) *ThrottleRepository {
	if prefix == "" {
		prefix = "throttle"
	}
	return &ThrottleRepository{client: client, prefix: prefix}
}

// Allow increments the counter for key and reports whether it is still within limit.
func (r *ThrottleRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r == nil || r.client == nil || limit <= 0 {
		return true, nil
	}
	fullKey := fmt.Sprintf("%s:%s", r.prefix, key)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis throttle %s: %w", fullKey, err)
	}
	return incr.Val() <= int64(limit), nil
}
