// Package cache provides the Redis-backed fast cache shared by the rate
// providers. Values are stored as JSON with a TTL; a nil Redis client
// degrades the cache to permanent misses so the service keeps working
// without Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// JSONCache is the surface the providers depend on
type JSONCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RateCache implements JSONCache on a Redis client
type RateCache struct {
	client *redis.Client
	log    *logrus.Entry
}

func NewRateCache(client *redis.Client, log *logrus.Logger) *RateCache {
	return &RateCache{
		client: client,
		log:    log.WithField("component", "rate_cache"),
	}
}

// Get unmarshals the cached JSON into dest and reports whether the key
// was present. Cache errors are logged and surface as misses.
func (c *RateCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache get failed")
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value for %s: %w", key, err)
	}
	return true, nil
}

func (c *RateCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
	return nil
}

// Key builders. Keys are namespaced per provider so operators can
// inspect and flush them selectively.

func UKTariffKey(commodityCode string) string {
	return fmt.Sprintf("uk_tariff:%s", commodityCode)
}

func EUTaricKey(hsCode, origin string, preferential bool) string {
	return fmt.Sprintf("eu_taric:%s:%s:%t", hsCode, strings.ToUpper(origin), preferential)
}

func VatKey(countryCode string) string {
	return fmt.Sprintf("vat:%s:standard", strings.ToUpper(countryCode))
}

func FxKey(base, quote string) string {
	return fmt.Sprintf("fx:%s:%s", strings.ToUpper(base), strings.ToUpper(quote))
}
