package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pricepulse/models"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("comparison not cached")

// ComparisonCache keeps recent comparison results in Redis
type ComparisonCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewComparisonCache connects to Redis and checks the connection
func NewComparisonCache(ctx context.Context, addr string, db int, ttl time.Duration) (*ComparisonCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ComparisonCache{client: rdb, ttl: ttl}, nil
}

func comparisonKey(productID int64) string {
	return fmt.Sprintf("comparison:%d", productID)
}

// Get returns the cached comparison of a product or ErrCacheMiss
func (c *ComparisonCache) Get(ctx context.Context, productID int64) (*models.Comparison, error) {
	data, err := c.client.Get(ctx, comparisonKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read comparison cache: %w", err)
	}

	var cmp models.Comparison
	if err := json.Unmarshal(data, &cmp); err != nil {
		return nil, fmt.Errorf("failed to decode cached comparison: %w", err)
	}
	return &cmp, nil
}

// Set stores a comparison for the configured TTL
func (c *ComparisonCache) Set(ctx context.Context, cmp *models.Comparison) error {
	data, err := json.Marshal(cmp)
	if err != nil {
		return fmt.Errorf("failed to encode comparison: %w", err)
	}
	if err := c.client.Set(ctx, comparisonKey(cmp.ProductID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write comparison cache: %w", err)
	}
	return nil
}

// Delete drops the cached comparison of a product
func (c *ComparisonCache) Delete(ctx context.Context, productID int64) error {
	if err := c.client.Del(ctx, comparisonKey(productID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached comparison: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ComparisonCache) Close() error {
	return c.client.Close()
}
