package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

const scanBatch = 200

// Store caches computed quotes in Redis keyed by product and quantity.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore constructs a Store. A nil client yields a store that always misses.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Key composes the cache key for a product/quantity pair.
func (s *Store) Key(productID int64, qty int) string {
	return s.productPattern(productID) + strconv.Itoa(qty)
}

func (s *Store) productPattern(productID int64) string {
	return s.prefix + "quote:" + strconv.FormatInt(productID, 10) + ":"
}

func (s *Store) indexKey(productID int64) string {
	return s.prefix + "quote-index:" + strconv.FormatInt(productID, 10)
}

// Get returns the cached quote. The boolean reports whether the key existed.
func (s *Store) Get(ctx context.Context, productID int64, qty int) (pricing.Quote, bool, error) {
	if s == nil || s.client == nil {
		return pricing.Quote{}, false, nil
	}
	data, err := s.client.Get(ctx, s.Key(productID, qty)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pricing.Quote{}, false, nil
		}
		return pricing.Quote{}, false, err
	}
	var quote pricing.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return pricing.Quote{}, false, fmt.Errorf("pricecache: decode %s: %w", s.Key(productID, qty), err)
	}
	return quote, true, nil
}

// Put stores quote with the given TTL and records the quantity in the
// product's index so InvalidateProduct can find it.
func (s *Store) Put(ctx context.Context, productID int64, qty int, quote pricing.Quote, ttl time.Duration) error {
	if s == nil || s.client == nil || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	index := s.indexKey(productID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.Key(productID, qty), data, ttl)
	pipe.SAdd(ctx, index, qty)
	pipe.Expire(ctx, index, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateProduct removes every cached quantity for productID.
func (s *Store) InvalidateProduct(ctx context.Context, productID int64) (int, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	index := s.indexKey(productID)
	members, err := s.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	var removed int64
	if len(members) > 0 {
		keys := make([]string, 0, len(members))
		for _, member := range members {
			keys = append(keys, s.productPattern(productID)+member)
		}
		removed, err = s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, err
		}
	}
	// entries whose index expired or was never written still match the pattern
	swept, err := s.DeletePattern(ctx, s.productPattern(productID)+"*")
	if err != nil {
		return int(removed), err
	}
	if err := s.client.Del(ctx, index).Err(); err != nil {
		return int(removed) + swept, err
	}
	return int(removed) + swept, nil
}

// DeletePattern removes every key matching the glob pattern.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
