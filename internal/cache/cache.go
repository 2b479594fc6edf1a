/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultChannelListTTL  = 5 * time.Minute
	DefaultChannelRulesTTL = 1 * time.Minute
	DefaultCouponStatsTTL  = 30 * time.Second
)

// Key prefixes for Redis cache
const (
	KeyChannelList  = "botdeck:cache:channels"
	KeyChannelRules = "botdeck:cache:channel_rules:" // + channel_id
	KeyCouponStats  = "botdeck:cache:coupon_stats"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ChannelListTTL  time.Duration
	ChannelRulesTTL time.Duration
	CouponStatsTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		ChannelListTTL:  DefaultChannelListTTL,
		ChannelRulesTTL: DefaultChannelRulesTTL,
		CouponStatsTTL:  DefaultCouponStatsTTL,
		DisableOnError:  true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern. Uses SCAN rather
// than KEYS so production instances are not blocked.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Channel caching methods

// CachedChannel represents a cached channel record.
type CachedChannel struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	TelegramChatID string   `json:"telegram_chat_id"`
	Language       string   `json:"language"`
	Timezone       string   `json:"timezone"`
	Active         bool     `json:"active"`
	Approved       bool     `json:"approved"`
	SortOrder      int      `json:"sort_order"`
	ContentTypes   []string `json:"content_types"`
}

// GetChannelList retrieves the cached list of channels.
func (c *Cache) GetChannelList(ctx context.Context) ([]CachedChannel, bool) {
	var channels []CachedChannel
	found, err := c.get(ctx, KeyChannelList, &channels)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(channels)).Msg("channel list cache hit")
	return channels, true
}

// SetChannelList caches the list of channels.
func (c *Cache) SetChannelList(ctx context.Context, channels []CachedChannel) error {
	return c.set(ctx, KeyChannelList, channels, c.config.ChannelListTTL)
}

// InvalidateChannelList removes the channel list from cache.
func (c *Cache) InvalidateChannelList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating channel list cache")
	return c.delete(ctx, KeyChannelList)
}

// Automation rule caching methods

// CachedRule represents a cached automation rule record.
type CachedRule struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Interval    int    `json:"interval"`
	Enabled     bool   `json:"enabled"`
	NextRunAt   string `json:"next_run_at,omitempty"` // RFC3339
}

// GetChannelRules retrieves cached automation rules for a channel.
func (c *Cache) GetChannelRules(ctx context.Context, channelID string) ([]CachedRule, bool) {
	var rules []CachedRule
	found, err := c.get(ctx, KeyChannelRules+channelID, &rules)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("channel_id", channelID).Int("count", len(rules)).Msg("channel rules cache hit")
	return rules, true
}

// SetChannelRules caches automation rules for a channel.
func (c *Cache) SetChannelRules(ctx context.Context, channelID string, rules []CachedRule) error {
	return c.set(ctx, KeyChannelRules+channelID, rules, c.config.ChannelRulesTTL)
}

// InvalidateChannelRules removes the rule cache for a channel.
func (c *Cache) InvalidateChannelRules(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating channel rules cache")
	return c.delete(ctx, KeyChannelRules+channelID)
}

// Coupon stats caching methods

// CachedCouponStats aggregates click and impression counters.
type CachedCouponStats struct {
	TotalCoupons     int   `json:"total_coupons"`
	ActiveCoupons    int   `json:"active_coupons"`
	TotalClicks      int64 `json:"total_clicks"`
	TotalImpressions int64 `json:"total_impressions"`
}

// GetCouponStats retrieves the cached coupon stats snapshot.
func (c *Cache) GetCouponStats(ctx context.Context) (*CachedCouponStats, bool) {
	var stats CachedCouponStats
	found, err := c.get(ctx, KeyCouponStats, &stats)
	if err != nil || !found {
		return nil, false
	}
	return &stats, true
}

// SetCouponStats caches the coupon stats snapshot.
func (c *Cache) SetCouponStats(ctx context.Context, stats *CachedCouponStats) error {
	return c.set(ctx, KeyCouponStats, stats, c.config.CouponStatsTTL)
}

// InvalidateCouponStats removes the coupon stats snapshot.
func (c *Cache) InvalidateCouponStats(ctx context.Context) error {
	return c.delete(ctx, KeyCouponStats)
}

// Bulk invalidation

// InvalidateChannel removes all caches related to a channel.
func (c *Cache) InvalidateChannel(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel_id", channelID).Msg("invalidating all channel caches")

	if err := c.InvalidateChannelList(ctx); err != nil {
		return err
	}
	return c.InvalidateChannelRules(ctx, channelID)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "botdeck:cache:*")
}
