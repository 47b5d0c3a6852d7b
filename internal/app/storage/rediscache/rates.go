// Package rediscache provides a Redis-backed read-through cache for resolved
// user rates.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/pkg/logger"
)

const keyPrefix = "user_rates:"

// UserRates caches resolved user rates keyed by user ID. Failures degrade to
// cache misses so Redis outages never block rate resolution.
type UserRates struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewUserRates builds a cache around an existing Redis client.
func NewUserRates(client *redis.Client, ttl time.Duration, log *logger.Logger) *UserRates {
	if log == nil {
		log = logger.NewDefault("rediscache")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserRates{client: client, ttl: ttl, log: log}
}

// Get returns the cached rates for a user, reporting whether the key was
// present.
func (c *UserRates) Get(ctx context.Context, userID string) ([]rate.UserRate, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("user rates cache read failed")
		}
		return nil, false
	}

	var rates []rate.UserRate
	if err := json.Unmarshal(raw, &rates); err != nil {
		c.log.WithError(err).Warn("user rates cache entry corrupt")
		return nil, false
	}
	return rates, true
}

// Set stores resolved rates for a user.
func (c *UserRates) Set(ctx context.Context, userID string, rates []rate.UserRate) {
	raw, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+userID, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("user rates cache write failed")
	}
}

// Invalidate drops a user's cached rates.
func (c *UserRates) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		c.log.WithError(err).Warn("user rates cache invalidation failed")
	}
}
