package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	client *redis.Client
}

// New creates a new Redis client
func New(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis ping failed: %w", err)
	}

	return &Client{client: client}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Get retrieves a value by key; missing keys read as empty.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// GetInt retrieves an integer counter; absent keys read as zero.
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// GetFloat retrieves a float counter; absent keys read as zero.
func (c *Client) GetFloat(ctx context.Context, key string) (float64, error) {
	val, err := c.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Set stores a value with TTL (0 means no expiry)
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores a value only if the key does not already exist.
// Returns true if the write happened.
func (c *Client) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Del removes keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// IncrWithTTL atomically increments a counter, attaching the TTL when the
// increment created the key. The window therefore expires exactly at the
// boundary set by the first request, never refreshed by later ones.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// IncrBy atomically adds n to an integer counter.
func (c *Client) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return c.client.IncrBy(ctx, key, n).Result()
}

// IncrByFloatWithTTL atomically adds amount to a float counter and refreshes
// the TTL. Callers pass a TTL computed against a fixed boundary (end of day),
// so refreshing never extends the key past it.
func (c *Client) IncrByFloatWithTTL(ctx context.Context, key string, amount float64, ttl time.Duration) (float64, error) {
	total, err := c.client.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return 0, err
	}
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return total, err
	}
	return total, nil
}

// decrIfPositive decrements only when the current value is positive, so the
// counter can never go negative under concurrent consumers.
var decrIfPositive = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v > 0 then
  return redis.call('DECR', KEYS[1])
end
return -1
`)

// DecrIfPositive consumes one unit from a counter if any remain.
// Returns the remaining balance and whether a unit was consumed.
func (c *Client) DecrIfPositive(ctx context.Context, key string) (int64, bool, error) {
	res, err := decrIfPositive.Run(ctx, c.client, []string{key}).Int64()
	if err != nil {
		return 0, false, err
	}
	if res < 0 {
		return 0, false, nil
	}
	return res, true, nil
}
