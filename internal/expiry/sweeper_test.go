package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/testutil"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func newOrderService(t *testing.T, conn *gorm.DB) orders.Service {
	t.Helper()
	ledger, err := inventory.NewLedger(inventory.NewCatalog(conn))
	require.NoError(t, err)
	svc, err := orders.NewService(orders.NewRepository(conn), db.Wrap(conn), ledger,
		outbox.NewService(outbox.NewRepository(conn), nil),
		orders.WithPaymentTimeout(30*time.Minute),
		orders.WithRetryPolicy(db.RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond}),
	)
	require.NoError(t, err)
	return svc
}

func seedPending(t *testing.T, conn *gorm.DB, variant models.Variant, qty int, createdAt time.Time) *models.Order {
	t.Helper()
	variantID := variant.ID
	order := &models.Order{
		Email:             "buyer@example.com",
		Currency:          enums.CurrencyEUR,
		ItemsTotalMinor:   variant.PriceMinor * int64(qty),
		GrandTotalMinor:   variant.PriceMinor * int64(qty),
		Status:            enums.OrderStatusPendingPayment,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		ShippingMethod:    enums.ShippingStandard,
		CreatedAt:         createdAt,
		Items: []models.OrderItem{{
			VariantID: &variantID,
			Snapshot:  models.ItemSnapshot{ProductName: "Camiseta", PriceMinor: variant.PriceMinor},
			Quantity:  qty,
		}},
	}
	require.NoError(t, orders.NewRepository(conn).Create(context.Background(), order))
	return order
}

func orderStatus(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.Select("status").Where("id = ?", id).First(&order).Error)
	return order.Status
}

func TestSweepExpiresStaleOrdersAndRestoresStock(t *testing.T) {
	conn := testutil.OpenDB(t)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 3})
	stale := seedPending(t, conn, variant, 2, t0)
	fresh := seedPending(t, conn, variant, 1, t0.Add(20*time.Minute))

	svc := newOrderService(t, conn)
	sweeper, err := NewSweeper(SweeperParams{
		Orders:    orders.NewRepository(conn),
		Expirer:   svc,
		Timeout:   30 * time.Minute,
		BatchSize: 1,
	})
	require.NoError(t, err)

	summary, err := sweeper.Sweep(context.Background(), t0.Add(31*time.Minute))
	require.NoError(t, err)
	require.NoError(t, summary.Errors)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, enums.OrderStatusExpired, orderStatus(t, conn, stale.ID))
	require.Equal(t, enums.OrderStatusPendingPayment, orderStatus(t, conn, fresh.ID))
	require.Equal(t, 5, testutil.Stock(t, conn, variant.ID))

	again, err := sweeper.Sweep(context.Background(), t0.Add(31*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, again.Processed)
	require.Equal(t, 5, testutil.Stock(t, conn, variant.ID))
}

func TestSweepPagesThroughEveryStaleOrder(t *testing.T) {
	conn := testutil.OpenDB(t)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 0})
	for i := 0; i < 5; i++ {
		seedPending(t, conn, variant, 1, t0.Add(time.Duration(i)*time.Second))
	}

	sweeper, err := NewSweeper(SweeperParams{
		Orders:      orders.NewRepository(conn),
		Expirer:     newOrderService(t, conn),
		BatchSize:   2,
		Concurrency: 2,
	})
	require.NoError(t, err)

	summary, err := sweeper.Sweep(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 5, summary.Processed)
	require.Equal(t, 5, summary.Succeeded)
	require.Equal(t, 5, testutil.Stock(t, conn, variant.ID))
}

type stubLister struct {
	pages [][]models.Order
	calls int
}

func (s *stubLister) ListStalePending(_ context.Context, _ time.Time, _ *pagination.Cursor, _ int) ([]models.Order, error) {
	if s.calls >= len(s.pages) {
		return nil, nil
	}
	page := s.pages[s.calls]
	s.calls++
	return page, nil
}

type stubExpirer struct {
	mu       sync.Mutex
	failures map[uuid.UUID]error
	noops    map[uuid.UUID]bool
	seen     []uuid.UUID
}

func (s *stubExpirer) Expire(_ context.Context, id uuid.UUID, _ time.Time) (orders.Result, error) {
	s.mu.Lock()
	s.seen = append(s.seen, id)
	s.mu.Unlock()
	if err := s.failures[id]; err != nil {
		return orders.Result{}, err
	}
	return orders.Result{Applied: !s.noops[id]}, nil
}

func TestSweepIsolatesPerOrderFailures(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	lister := &stubLister{pages: [][]models.Order{{{ID: ids[0]}, {ID: ids[1]}, {ID: ids[2]}}}}
	expirer := &stubExpirer{
		failures: map[uuid.UUID]error{ids[0]: errors.New("variant gone")},
		noops:    map[uuid.UUID]bool{ids[1]: true},
	}
	sweeper, err := NewSweeper(SweeperParams{Orders: lister, Expirer: expirer, BatchSize: 10})
	require.NoError(t, err)

	summary, err := sweeper.Sweep(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, expirer.seen, 3)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Skipped)
	require.ErrorContains(t, summary.Errors, "variant gone")
}

type failingLister struct{}

func (failingLister) ListStalePending(context.Context, time.Time, *pagination.Cursor, int) ([]models.Order, error) {
	return nil, errors.New("db down")
}

func TestSweepReportsListFailure(t *testing.T) {
	sweeper, err := NewSweeper(SweeperParams{Orders: failingLister{}, Expirer: &stubExpirer{}})
	require.NoError(t, err)
	_, err = sweeper.Sweep(context.Background(), t0)
	require.ErrorContains(t, err, "db down")
}

func TestNewSweeperRequiresDependencies(t *testing.T) {
	_, err := NewSweeper(SweeperParams{Expirer: &stubExpirer{}})
	require.Error(t, err)
	_, err = NewSweeper(SweeperParams{Orders: &stubLister{}})
	require.Error(t, err)
}
