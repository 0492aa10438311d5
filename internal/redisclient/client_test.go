package redisclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIdempotencyKeys(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { c.GetClient().Del(ctx, idempotencyKey(key)) })

	_, found, err := c.GetOrderForKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetOrderForKey(ctx, key, 42, time.Minute))

	orderID, found, err := c.GetOrderForKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), orderID)
}

func TestLock(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { c.GetClient().Del(ctx, lockKey(key)) })

	token, ok, err := c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, token))
	token, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.ReleaseLock(ctx, key, token))
}

func TestReleaseLock_KeepsLockOfAnotherOwner(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { c.GetClient().Del(ctx, lockKey(key)) })

	stale, ok, err := c.AcquireLock(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, err := c.AcquireLock(ctx, key, time.Minute)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, c.ReleaseLock(ctx, key, stale))

	_, ok, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "the current owner's lock must survive a stale release")
}
