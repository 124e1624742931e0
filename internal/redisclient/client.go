package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockNotHeld is returned when a lock is released by a caller that no longer owns it
var ErrLockNotHeld = errors.New("lock not held")

// releaseLockScript deletes the lock only if it still carries the caller's token
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

const availableField = "available"

type Client struct {
	rdb         *redis.Client
	unlockCheck *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:         rdb,
		unlockCheck: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func inventoryKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// AcquireLock tries to take a distributed lock. The returned token must be
// passed to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	res, err := c.unlockCheck.Run(ctx, c.rdb, []string{lockKey(key)}, token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// SetAvailability stores the cached stock level of one product
func (c *Client) SetAvailability(ctx context.Context, productID int64, available int) error {
	return c.rdb.HSet(ctx, inventoryKey(productID), availableField, available).Err()
}

// SetAvailabilities stores several cached stock levels in one round trip
func (c *Client) SetAvailabilities(ctx context.Context, levels map[int64]int) error {
	if len(levels) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for productID, available := range levels {
		pipe.HSet(ctx, inventoryKey(productID), availableField, available)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetAvailability reads the cached stock level. ok is false on a cache miss.
func (c *Client) GetAvailability(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.HGet(ctx, inventoryKey(productID), availableField).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	available, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached availability for product %d: %w", productID, err)
	}
	return available, true, nil
}
