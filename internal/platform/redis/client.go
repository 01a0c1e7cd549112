// Package redis wraps the go-redis client with the small key-value,
// hash and FIFO surface the cache layer, the task queue and the dynamic
// parameter store are built on.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Common errors returned by the client.
var (
	// ErrKeyNotFound is returned when a key does not exist in redis.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnavailable is returned when the redis backend cannot be reached.
	ErrUnavailable = errors.New("redis unavailable")
)

// Client is the entrypoint into redis.
type Client struct {
	db *goredis.Client
}

// Open returns a configured Client from a redis:// address, verifying a
// successful connection with a ping.
func Open(ctx context.Context, address string) (*Client, error) {
	opts, err := goredis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address: %w", err)
	}

	client := &Client{db: goredis.NewClient(opts)}
	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping failed: %v", ErrUnavailable, err)
	}
	return client, nil
}

// New returns a Client without verifying connectivity. Connections are
// established lazily, so a redis outage at startup does not keep the
// service from coming up; callers that need redis fail per operation.
func New(address string) (*Client, error) {
	opts, err := goredis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address: %w", err)
	}
	return &Client{db: goredis.NewClient(opts)}, nil
}

// NewFromRedisClient wraps an already configured go-redis client.
// Used by tests that point the client at an in-process redis.
func NewFromRedisClient(db *goredis.Client) *Client {
	return &Client{db: db}
}

// Ping reports whether the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get looks up the provided key, returning ErrKeyNotFound when absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.db.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set stores the value under key with the given TTL. A zero TTL stores
// the value without expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.db.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetNX stores the value only if the key does not yet exist. Returns
// whether this call created the entry.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	created, err := c.db.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %q: %w", key, err)
	}
	return created, nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// HSet writes the given fields into the hash stored at key.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := c.db.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("hset %q: %w", key, err)
	}
	return nil
}

// HGetAll returns all fields of the hash stored at key. A missing hash
// yields an empty map, matching redis semantics.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.db.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %q: %w", key, err)
	}
	return fields, nil
}

// Expire sets the TTL on an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.db.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %q: %w", key, err)
	}
	return nil
}

// LPush pushes a value onto the head of the list stored at key.
func (c *Client) LPush(ctx context.Context, key, value string) error {
	if err := c.db.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("lpush %q: %w", key, err)
	}
	return nil
}

// BRPop blocks up to timeout waiting to pop a value from the tail of the
// list stored at key. Returns ErrKeyNotFound when the wait times out
// with nothing available. The push/pop pair (head push, tail pop)
// preserves FIFO ordering.
func (c *Client) BRPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	result, err := c.db.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("brpop %q: %w", key, err)
	}
	// BRPop returns (key, value) pairs.
	return result[1], nil
}

// LRange returns the list elements between start and stop inclusive.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := c.db.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %q: %w", key, err)
	}
	return values, nil
}

// LTrim trims the list to the elements between start and stop inclusive.
func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := c.db.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("ltrim %q: %w", key, err)
	}
	return nil
}

// ScanKeys iterates the keyspace and returns all keys matching pattern.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	it := c.db.Scan(ctx, 0, pattern, 0).Iterator()

	var lastKey string
	var lastOk bool
	for it.Next(ctx) {
		key := it.Val()
		// redis may return duplicates
		if lastOk && key == lastKey {
			continue
		}
		lastKey, lastOk = key, true
		keys = append(keys, key)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	return keys, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}
