// Package cache provides a namespaced TTL cache for expensive analysis
// sub-results, with an atomic set-if-absent primitive that guarantees at
// most one populating computation per key under concurrent requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markoval/stylist-api/internal/platform/redis"
)

// Default TTLs per purpose. Purpose-specific artifacts are short-lived;
// intermediate computation steps are kept longer so repeated style
// requests against the same URL stay cheap.
const (
	// TTLAnalysis applies to full analysis results keyed by (url, style, occasion).
	TTLAnalysis = 24 * time.Hour

	// TTLCleanedText applies to the cleaned page text keyed by url.
	TTLCleanedText = 24 * time.Hour

	// TTLSteps applies to intermediate summarization steps keyed by url.
	TTLSteps = 48 * time.Hour
)

// Purpose tags used in key derivation. Distinct purposes never collide
// because the tag prefixes the hashed arguments.
const (
	purposeAnalysis = "analysis"
	purposeText     = "text"
	purposeSteps    = "steps"
)

// Cache memoizes values in redis with per-entry TTLs. Values are stored
// as JSON; a stored value that fails to deserialize is treated as absent
// and purged.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Cache on top of the given redis client.
func New(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger.With("component", "cache"),
	}
}

// Get looks up key and unmarshals the stored JSON into out. It returns
// false when the key is absent. A corrupt stored value is purged as a
// side effect and reported as a miss, never as an error.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("purging corrupt cache entry",
			"key", key,
			"error", err)
		if delErr := c.client.Delete(ctx, key); delErr != nil {
			c.logger.Error("failed to purge corrupt cache entry",
				"key", key,
				"error", delErr)
		}
		return false, nil
	}
	return true, nil
}

// Set unconditionally stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set: marshal value: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// SetIfAbsent atomically stores value only when key does not yet exist
// and reports whether this call created the entry. It is the primitive
// that keeps two concurrent requests for the same URL from both running
// the expensive fetch-and-clean pass: the loser of the race must read the
// winner's eventual value instead of recomputing.
func (c *Cache) SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache setnx: marshal value: %w", err)
	}
	created, err := c.client.SetNX(ctx, key, raw, ttl)
	if err != nil {
		return false, fmt.Errorf("cache setnx: %w", err)
	}
	return created, nil
}

// Delete removes the entry under key. Removing a missing entry succeeds.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
