package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "sub:"

// CachedRepository reads through Redis in front of another Repository. The cache is advisory:
// any Redis failure falls back to the wrapped repository, and absence is never cached.
type CachedRepository struct {
	next   Repository
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedRepository(next Repository, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedRepository {
	return &CachedRepository{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "subscription-cache"}),
	}
}

func CacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

func (c *CachedRepository) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	key := CacheKey(userID)

	if sub, ok := c.get(ctx, key); ok {
		return sub, nil
	}

	sub, err := c.next.FindByUserID(ctx, userID)
	if err != nil || sub == nil {
		return sub, err
	}

	c.set(ctx, key, sub)
	return sub, nil
}

func (c *CachedRepository) get(ctx context.Context, key string) (*models.Subscription, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.SubscriptionCacheResults.WithLabelValues("miss").Inc()
		} else {
			metrics.SubscriptionCacheResults.WithLabelValues("error").Inc()
			c.logger.Warn("subscription cache read failed", map[string]interface{}{
				"key":   key,
				"error": apperrors.NewCacheUnavailableError(err),
			})
		}
		return nil, false
	}

	var sub models.Subscription
	if err := json.Unmarshal([]byte(val), &sub); err != nil {
		metrics.SubscriptionCacheResults.WithLabelValues("error").Inc()
		c.logger.Debug("discarding undecodable cache entry", map[string]interface{}{"key": key})
		return nil, false
	}

	metrics.SubscriptionCacheResults.WithLabelValues("hit").Inc()
	return &sub, true
}

func (c *CachedRepository) set(ctx context.Context, key string, sub *models.Subscription) {
	data, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("subscription cache write failed", map[string]interface{}{
			"key":   key,
			"error": apperrors.NewCacheUnavailableError(err),
		})
	}
}
