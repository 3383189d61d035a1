package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestReleaseIfOwnerOnlyDeletesOwnLease(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMemoryCommands()}
	key := client.LockKey("cron", "test")

	won, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	won, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, won)

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, released)

	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMemoryCommands()}
	key := client.IdempotencyKey("http", "k-1")

	require.NoError(t, client.Set(ctx, key, `{"state":"complete"}`, time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"complete"}`, got)

	require.NoError(t, client.Del(ctx, key))
	require.NoError(t, client.Del(ctx))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestUnconnectedClientFailsFast(t *testing.T) {
	ctx := context.Background()
	var nilClient *Client
	for _, client := range []*Client{{}, nilClient} {
		require.ErrorIs(t, client.Ping(ctx), ErrClosed)
		_, err := client.SetNX(ctx, "k", "v", time.Second)
		require.ErrorIs(t, err, ErrClosed)
		_, err = client.ReleaseIfOwner(ctx, "k", "v")
		require.ErrorIs(t, err, ErrClosed)
		require.NoError(t, client.Close())
	}
}

func TestKeyNamespaces(t *testing.T) {
	client := &Client{}
	require.Equal(t, "storefront:idem:payments:evt_1", client.IdempotencyKey("payments", "evt_1"))
	require.Equal(t, "storefront:idem:payments", client.IdempotencyKey("payments", " "))
	require.Equal(t, "storefront:lock:cron:prod", client.LockKey(" cron ", "prod"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2?pool_size=3",
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 3, opts.PoolSize, "URL settings win")
	require.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4, MinIdleConns: 2})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 4, opts.DB)
	require.Equal(t, 2, opts.MinIdleConns)
}

// memoryCommands implements commands over a map; Eval understands only the
// compare-and-delete script.
type memoryCommands struct {
	values map[string]string
}

func newMemoryCommands() *memoryCommands {
	return &memoryCommands{values: map[string]string{}}
}

func (m *memoryCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memoryCommands) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := m.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *memoryCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != deleteIfValue || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unsupported script"))
	}
	if m.values[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
