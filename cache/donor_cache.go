package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"bloodbank/backend/config"
	"bloodbank/backend/models"
)

// KeyPrefix namespaces every donor listing key.
const KeyPrefix = "donors:"

// NewRedisClient creates a Redis client from cfg and checks the connection.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// DonorCache keeps public donor listings in Redis as JSON.
type DonorCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewDonorCache creates a DonorCache whose entries expire after ttl.
func NewDonorCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *DonorCache {
	return &DonorCache{client: client, ttl: ttl, log: log}
}

// GetDonors returns the cached listing for key. ok is false on a miss.
func (c *DonorCache) GetDonors(ctx context.Context, key string) ([]models.AvailableDonor, bool, error) {
	raw, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var donors []models.AvailableDonor
	if err := json.Unmarshal(raw, &donors); err != nil {
		// Unreadable entries are treated as a miss and overwritten on the next set.
		c.log.Warn("Discarding corrupt donor cache entry", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return donors, true, nil
}

// SetDonors stores the listing for key.
func (c *DonorCache) SetDonors(ctx context.Context, key string, donors []models.AvailableDonor) error {
	raw, err := json.Marshal(donors)
	if err != nil {
		return fmt.Errorf("encode donors: %w", err)
	}
	if err := c.client.Set(ctx, KeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached listing.
func (c *DonorCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyPrefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.log.Debug("Donor cache invalidated")
	return nil
}
