package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	replayScopePrefix = "http"
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute

	stateInFlight = "in_flight"
	stateComplete = "complete"
)

var (
	// ErrInFlight means another request holding the same key has not finished.
	ErrInFlight = errors.New("idempotency: request with this key is in flight")
	// ErrKeyReuse means the key was first used with a different request body.
	ErrKeyReuse = errors.New("idempotency: key reused with a different request")
)

// ReplayStore is the Redis surface needed to reserve and persist responses.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Response is a stored HTTP outcome replayed for repeated keys.
type Response struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Replays reserves Idempotency-Key values for mutating requests. The first
// caller reserves the key, runs, then either completes it with its response
// or abandons it so a retry can run again.
type Replays struct {
	store ReplayStore
}

func NewReplays(store ReplayStore) (*Replays, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	return &Replays{store: store}, nil
}

// Reserve claims key for scope. It returns the stored response when a previous
// request with the same hash already completed, nil when the caller now owns
// the key, ErrInFlight while another owner runs and ErrKeyReuse when the
// stored hash differs.
func (r *Replays) Reserve(ctx context.Context, scope, key, requestHash string) (*Response, error) {
	storeKey, err := r.storeKey(scope, key)
	if err != nil {
		return nil, err
	}
	marker, err := json.Marshal(Response{State: stateInFlight, RequestHash: requestHash})
	if err != nil {
		return nil, err
	}
	claimed, err := r.store.SetNX(ctx, storeKey, string(marker), pendingTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if claimed {
		return nil, nil
	}

	raw, err := r.store.Get(ctx, storeKey)
	if errors.Is(err, goredis.Nil) {
		// the holder abandoned or expired between SETNX and GET
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}
	var stored Response
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if stored.RequestHash != requestHash {
		return nil, ErrKeyReuse
	}
	if stored.State != stateComplete {
		return nil, ErrInFlight
	}
	return &stored, nil
}

// Complete stores resp under the reserved key for ttl.
func (r *Replays) Complete(ctx context.Context, scope, key string, resp Response, ttl time.Duration) error {
	storeKey, err := r.storeKey(scope, key)
	if err != nil {
		return err
	}
	resp.State = stateComplete
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, storeKey, string(payload), ttl)
}

// Abandon releases a reservation so the same key can be retried.
func (r *Replays) Abandon(ctx context.Context, scope, key string) error {
	storeKey, err := r.storeKey(scope, key)
	if err != nil {
		return err
	}
	return r.store.Del(ctx, storeKey)
}

func (r *Replays) storeKey(scope, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("idempotency key is required")
	}
	return r.store.IdempotencyKey(replayScopePrefix+":"+scope, key), nil
}
