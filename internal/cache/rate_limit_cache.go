package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cashback-service/internal/ephemeral"
	"cashback-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

type RateLimitCache struct {
	store ephemeral.Store
}

func NewRateLimitCache(store ephemeral.Store) *RateLimitCache {
	return &RateLimitCache{store: store}
}

func rateLimitKey(action, identifier string) string {
	return rateLimitPrefix + action + ":" + identifier
}

// Allow consumes one slot of the fixed window for action/identifier and
// reports whether the caller is still within maxAttempts. A store failure
// denies: it returns false together with the error.
func (c *RateLimitCache) Allow(ctx context.Context, action, identifier string, maxAttempts int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := rateLimitKey(action, identifier)
	count, err := c.store.IncrementWithExpiry(ctx, key, window)
	if err != nil {
		util.Error("rate limit check failed, denying",
			zap.String("action", action),
			zap.Error(err))
		return false, err
	}
	if count > int64(maxAttempts) {
		util.Debug("rate limit exceeded",
			zap.String("action", action),
			zap.Int64("count", count),
			zap.Int("max", maxAttempts))
		return false, nil
	}
	return true, nil
}
