package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

type productSnapshot struct {
	Price  decimal.Decimal     `json:"price"`
	Groups []pricing.RuleGroup `json:"groups"`
}

// CachedProducts memoises product lookups in Redis. Errors from the cache are
// ignored and the lookup falls through to the wrapped store.
type CachedProducts struct {
	next   Products
	cache  *Cache
	prefix string
}

// NewCachedProducts wraps next with a Redis snapshot cache.
func NewCachedProducts(next Products, cache *Cache, prefix string) *CachedProducts {
	return &CachedProducts{next: next, cache: cache, prefix: prefix}
}

func (c *CachedProducts) key(productID int64) string {
	return c.prefix + "product:" + strconv.FormatInt(productID, 10)
}

// snapshot returns the cached product view. rulesErr reports a rule lookup
// failure separately so the price stays usable; such snapshots are not cached.
func (c *CachedProducts) snapshot(ctx context.Context, productID int64) (snap productSnapshot, rulesErr error, err error) {
	if ok, cacheErr := c.cache.GetJSON(ctx, c.key(productID), &snap); cacheErr == nil && ok {
		return snap, nil, nil
	}
	price, err := c.next.BasePrice(ctx, productID)
	if err != nil {
		return productSnapshot{}, nil, err
	}
	groups, rulesErr := c.next.RuleGroups(ctx, productID)
	snap = productSnapshot{Price: price, Groups: groups}
	if rulesErr != nil {
		snap.Groups = nil
		return snap, rulesErr, nil
	}
	_ = c.cache.SetJSON(ctx, c.key(productID), snap)
	return snap, nil, nil
}

// BasePrice implements Products. A failed rule lookup does not affect the price.
func (c *CachedProducts) BasePrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	snap, _, err := c.snapshot(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Price, nil
}

// RuleGroups implements Products.
func (c *CachedProducts) RuleGroups(ctx context.Context, productID int64) ([]pricing.RuleGroup, error) {
	snap, rulesErr, err := c.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if rulesErr != nil {
		return nil, rulesErr
	}
	if snap.Groups == nil {
		return []pricing.RuleGroup{}, nil
	}
	return snap.Groups, nil
}

// HasRules implements Products.
func (c *CachedProducts) HasRules(ctx context.Context, productID int64) (bool, error) {
	snap, rulesErr, err := c.snapshot(ctx, productID)
	if err != nil {
		return false, err
	}
	if rulesErr != nil {
		return false, rulesErr
	}
	return hasAnyRule(snap.Groups), nil
}

// Forget drops the cached snapshot for productID.
func (c *CachedProducts) Forget(ctx context.Context, productID int64) error {
	return c.cache.Delete(ctx, c.key(productID))
}
