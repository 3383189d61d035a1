package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultTxMaxRetries   = 3
	defaultTxRetryBackoff = 25 * time.Millisecond
	maxTxRetryBackoff     = time.Second
)

// TxRunner is satisfied by *Client and by test doubles.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RetryPolicy bounds transaction replays on transient conflicts.
type RetryPolicy struct {
	MaxRetries uint64
	Backoff    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: defaultTxMaxRetries, Backoff: defaultTxRetryBackoff}
}

func RetryPolicyFromConfig(cfg config.DBConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.TxMaxRetries > 0 {
		policy.MaxRetries = cfg.TxMaxRetries
	}
	if cfg.TxRetryBackoff > 0 {
		policy.Backoff = cfg.TxRetryBackoff
	}
	return policy
}

// RetryTx runs fn in a fresh transaction, replaying it with exponential
// backoff while it fails with a transient conflict. A conflict that outlives
// the policy surfaces as CodeTransient.
func RetryTx(ctx context.Context, runner TxRunner, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	base := policy.Backoff
	if base <= 0 {
		base = defaultTxRetryBackoff
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(maxTxRetryBackoff, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(policy.MaxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := runner.WithTx(ctx, fn); err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && IsTransient(err) && !pkgerrors.HasCode(err, pkgerrors.CodeTransient) {
		return pkgerrors.Wrap(pkgerrors.CodeTransient, err, "transaction conflict persisted after retries")
	}
	return err
}
