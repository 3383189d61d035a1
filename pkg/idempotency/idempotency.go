package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Processed remembers which event ids one consumer has handled. A marker is
// written with SETNX, so among concurrent deliveries of the same id exactly
// one sees it as new.
type Processed struct {
	store redis.IdempotencyStore
	scope string
	ttl   time.Duration
}

// NewProcessed binds markers to consumer. A zero ttl keeps markers forever.
func NewProcessed(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Processed, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency: store required")
	case consumer == "":
		return nil, errors.New("idempotency: consumer required")
	case ttl < 0:
		return nil, errors.New("idempotency: ttl must not be negative")
	}
	return &Processed{store: store, scope: "processed:" + consumer, ttl: ttl}, nil
}

// CheckAndMark reports whether eventID was already marked and marks it if not.
func (p *Processed) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := p.key(eventID)
	if err != nil {
		return false, err
	}
	fresh, err := p.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), p.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Forget drops the marker so a redelivery of eventID is handled again.
func (p *Processed) Forget(ctx context.Context, eventID string) error {
	key, err := p.key(eventID)
	if err != nil {
		return err
	}
	return p.store.Del(ctx, key)
}

func (p *Processed) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("idempotency: event id required")
	}
	return p.store.IdempotencyKey(p.scope, eventID), nil
}
