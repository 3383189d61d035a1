package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/expiry"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// OrderExpiryJobName is the registry name of the expiry sweep job.
const OrderExpiryJobName = "order-expiry"

type orderSweeper interface {
	Sweep(ctx context.Context, now time.Time) (expiry.Summary, error)
}

// OrderExpiryJobParams configure the expiry sweep job.
type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper orderSweeper
}

// NewOrderExpiryJob builds the job that expires unpaid orders.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	sweeper orderSweeper
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return OrderExpiryJobName }

// Run sweeps once. Per-order failures fail the job so they show up in the
// cron failure metric; the remaining orders are still processed.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	summary, err := j.sweeper.Sweep(ctx, j.now().UTC())
	if err != nil {
		return err
	}
	if summary.Errors != nil {
		return fmt.Errorf("%d orders failed to expire: %w", summary.Failed, summary.Errors)
	}
	return nil
}
