package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func TestReplaysLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	replays, err := NewReplays(store)
	require.NoError(t, err)

	stored, err := replays.Reserve(ctx, "user-1|POST|/api/v1/checkout", "key-1", "hash-a")
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Equal(t, pendingTTL, store.ttls["sf:idempotency:http:user-1|POST|/api/v1/checkout:key-1"])

	_, err = replays.Reserve(ctx, "user-1|POST|/api/v1/checkout", "key-1", "hash-a")
	require.ErrorIs(t, err, ErrInFlight)

	err = replays.Complete(ctx, "user-1|POST|/api/v1/checkout", "key-1", Response{
		RequestHash: "hash-a",
		Status:      201,
		ContentType: "application/json",
		Body:        []byte(`{"data":{"id":"o-1"}}`),
	}, 7*24*time.Hour)
	require.NoError(t, err)

	stored, err = replays.Reserve(ctx, "user-1|POST|/api/v1/checkout", "key-1", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 201, stored.Status)
	require.JSONEq(t, `{"data":{"id":"o-1"}}`, string(stored.Body))

	_, err = replays.Reserve(ctx, "user-1|POST|/api/v1/checkout", "key-1", "hash-b")
	require.ErrorIs(t, err, ErrKeyReuse)
}

func TestReplaysAbandonAllowsRetry(t *testing.T) {
	ctx := context.Background()
	replays, err := NewReplays(newMemStore())
	require.NoError(t, err)

	_, err = replays.Reserve(ctx, "scope", "key", "hash")
	require.NoError(t, err)
	require.NoError(t, replays.Abandon(ctx, "scope", "key"))

	stored, err := replays.Reserve(ctx, "scope", "key", "hash")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestReplaysRequiresKey(t *testing.T) {
	replays, err := NewReplays(newMemStore())
	require.NoError(t, err)
	_, err = replays.Reserve(context.Background(), "scope", "   ", "hash")
	require.Error(t, err)

	_, err = NewReplays(nil)
	require.Error(t, err)
}

type failingStore struct {
	*memStore
}

func (f failingStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestReplaysSurfacesStoreErrors(t *testing.T) {
	replays, err := NewReplays(failingStore{newMemStore()})
	require.NoError(t, err)
	_, err = replays.Reserve(context.Background(), "scope", "key", "hash")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInFlight)
}
