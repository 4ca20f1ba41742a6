/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for screen and
// venue metadata. The idle payload hits these records on every screen
// refresh, so they are worth keeping off the database hot path. Media
// items are deliberately NOT cached: the reconciler must always see
// the store's truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/models"
)

// Default TTL values.
const (
	DefaultScreenTTL = 5 * time.Minute
	DefaultVenueTTL  = 15 * time.Minute
)

// Key prefixes.
const (
	KeyScreen = "advero:cache:screen:" // + screen_id
	KeyVenue  = "advero:cache:venue:"  // + owner_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScreenTTL time.Duration
	VenueTTL  time.Duration

	// DisableOnError turns any Redis error into a permanent bypass.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ScreenTTL:      DefaultScreenTTL,
		VenueTTL:       DefaultVenueTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil
// or unavailable cache is always a miss, never an error.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. An unreachable Redis yields a disabled cache,
// not an error.
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
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// GetScreen returns the cached screen record, if present.
func (c *Cache) GetScreen(ctx context.Context, screenID string) (*models.Screen, bool) {
	var screen models.Screen
	ok, _ := c.get(ctx, KeyScreen+screenID, &screen)
	if !ok {
		return nil, false
	}
	return &screen, true
}

// SetScreen caches a screen record.
func (c *Cache) SetScreen(ctx context.Context, screen *models.Screen) {
	if screen == nil {
		return
	}
	c.set(ctx, KeyScreen+screen.ID, screen, c.ttl(c.config.ScreenTTL, DefaultScreenTTL))
}

// GetVenue returns the cached venue profile, if present.
func (c *Cache) GetVenue(ctx context.Context, ownerID string) (*models.VenueProfile, bool) {
	var venue models.VenueProfile
	ok, _ := c.get(ctx, KeyVenue+ownerID, &venue)
	if !ok {
		return nil, false
	}
	return &venue, true
}

// SetVenue caches a venue profile.
func (c *Cache) SetVenue(ctx context.Context, venue *models.VenueProfile) {
	if venue == nil {
		return
	}
	c.set(ctx, KeyVenue+venue.ID, venue, c.ttl(c.config.VenueTTL, DefaultVenueTTL))
}

// InvalidateScreen drops the cached screen record.
func (c *Cache) InvalidateScreen(ctx context.Context, screenID string) {
	c.delete(ctx, KeyScreen+screenID)
}

func (c *Cache) ttl(configured, fallback time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return fallback
}

// handleError applies the circuit breaker.
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
