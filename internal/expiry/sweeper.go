package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const (
	defaultBatchSize   = 200
	defaultConcurrency = 4
)

type staleOrderLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID, now time.Time) (orders.Result, error)
}

// SweeperParams configure the expiry sweeper.
type SweeperParams struct {
	Logger      *logger.Logger
	Orders      staleOrderLister
	Expirer     orderExpirer
	Metrics     *metrics.OrderMetrics
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
}

// Summary reports what one sweep did. Errors combines every per-order
// failure; it never includes orders that were skipped.
type Summary struct {
	Processed int   `json:"processed"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Errors    error `json:"-"`
}

// Sweeper expires PENDING_PAYMENT orders that outlived the payment timeout
// and returns their reserved stock.
type Sweeper struct {
	logg        *logger.Logger
	orders      staleOrderLister
	expirer     orderExpirer
	metrics     *metrics.OrderMetrics
	timeout     time.Duration
	batchSize   int
	concurrency int
}

// NewSweeper builds a sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("stale order lister required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = orders.DefaultPaymentTimeout
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Sweeper{
		logg:        logg,
		orders:      params.Orders,
		expirer:     params.Expirer,
		metrics:     params.Metrics,
		timeout:     timeout,
		batchSize:   batch,
		concurrency: concurrency,
	}, nil
}

// Sweep expires every order created before now minus the timeout. One
// order failing does not stop the others. The returned error is reserved
// for failures to list candidates.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Summary, error) {
	now = now.UTC()
	cutoff := now.Add(-s.timeout)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":  "orders.expiry_sweep",
		"cutoff": cutoff,
	})

	var (
		summary Summary
		after   *pagination.Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(logCtx, summary), err
		}
		page, err := s.orders.ListStalePending(ctx, cutoff, after, s.batchSize)
		if err != nil {
			return s.finish(logCtx, summary), fmt.Errorf("list stale orders: %w", err)
		}
		if len(page) == 0 {
			break
		}
		s.sweepPage(ctx, now, page, &summary)
		if len(page) < s.batchSize {
			break
		}
		last := page[len(page)-1]
		after = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return s.finish(logCtx, summary), nil
}

func (s *Sweeper) sweepPage(ctx context.Context, now time.Time, page []models.Order, summary *Summary) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, candidate := range page {
		orderID := candidate.ID
		g.Go(func() error {
			res, err := s.expirer.Expire(ctx, orderID, now)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch {
			case err != nil:
				summary.Failed++
				summary.Errors = multierr.Append(summary.Errors, fmt.Errorf("expire order %s: %w", orderID, err))
				s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "order expiry failed", err)
			case res.Applied:
				summary.Succeeded++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Sweeper) finish(ctx context.Context, summary Summary) Summary {
	s.metrics.AddSweep("succeeded", summary.Succeeded)
	s.metrics.AddSweep("failed", summary.Failed)
	s.metrics.AddSweep("skipped", summary.Skipped)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	})
	s.logg.Info(ctx, "expiry sweep complete")
	return summary
}
