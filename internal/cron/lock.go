package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock elects the single instance allowed to run a cron cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

type lease struct {
	token   string
	expires time.Time
}

// RedisLock is a lease on a Redis key. Each acquisition writes a fresh token
// so a holder whose lease expired cannot delete its successor's key.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	current *lease
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock: redis client required")
	case key == "":
		return nil, errors.New("cron lock: key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl, now: time.Now}, nil
}

// TTL is the lease length written on every acquisition.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

// Acquire takes the lease. It reports true without touching Redis when this
// instance still holds an unexpired lease.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.current != nil && now.Before(l.current.expires) {
		return true, nil
	}
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("cron lock %s: %w", l.key, err)
	}
	if !won {
		l.current = nil
		return false, nil
	}
	l.current = &lease{token: token, expires: now.Add(l.ttl)}
	return true, nil
}

// Release drops the lease if the stored token is still ours. Releasing a
// lock that is not held is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	held := l.current
	l.current = nil
	l.mu.Unlock()
	if held == nil {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, held.token); err != nil {
		return fmt.Errorf("cron lock %s release: %w", l.key, err)
	}
	return nil
}
