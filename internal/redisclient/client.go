package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb         *redis.Client
	releaseLock *redis.Script
}

// NewClient creates a new Redis client and checks the connection
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
		releaseLock: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// GetOrderForKey returns the order created for an idempotency key, if any
func (c *Client) GetOrderForKey(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid order id stored for key %s: %w", key, err)
	}
	return orderID, true, nil
}

// SetOrderForKey stores the order created for an idempotency key with TTL
func (c *Client) SetOrderForKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// AcquireLock acquires a distributed lock and returns its owner token
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases the lock only while token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	if err := c.releaseLock.Run(ctx, c.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
