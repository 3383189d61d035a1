package inventory

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/testutil"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newLedger(t *testing.T, conn *gorm.DB) *Ledger {
	t.Helper()
	ledger, err := NewLedger(NewCatalog(conn))
	require.NoError(t, err)
	return ledger
}

func TestReserveDecrementsStock(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 5})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, variant.ID, 3)
	})
	require.NoError(t, err)
	require.Equal(t, 2, testutil.Stock(t, conn, variant.ID))
}

func TestReserveExactStockReachesZero(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 2})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, variant.ID, 2)
	})
	require.NoError(t, err)
	require.Equal(t, 0, testutil.Stock(t, conn, variant.ID))
}

func TestReserveInsufficientStockLeavesStockUntouched(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{
		ProductName: "Sudadera",
		Size:        "M",
		Color:       "Negro",
		Stock:       1,
	})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, variant.ID, 2)
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	require.Contains(t, err.Error(), "Sudadera (M, Negro)")

	details, ok := pkgerrors.As(err).Details().(ShortageDetails)
	require.True(t, ok)
	require.Equal(t, 2, details.Requested)
	require.Equal(t, 1, details.Available)
	require.Equal(t, variant.ID, details.VariantID)
	require.Equal(t, 1, testutil.Stock(t, conn, variant.ID))
}

func TestReserveRejectsInactiveVariantAndProduct(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	inactiveVariant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 10, Inactive: true})
	inactiveProduct := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 10, ProductInactive: true})

	for _, id := range []uuid.UUID{inactiveVariant.ID, inactiveProduct.ID} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return ledger.Reserve(context.Background(), tx, id, 1)
		})
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
		details := pkgerrors.As(err).Details().(ShortageDetails)
		require.Zero(t, details.Available)
		require.Equal(t, 10, testutil.Stock(t, conn, id))
	}
}

func TestReserveUnknownVariant(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, uuid.New(), 1)
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 3})

	for _, qty := range []int{0, -1} {
		err := ledger.Reserve(context.Background(), conn, variant.ID, qty)
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "qty %d: %v", qty, err)
	}
	require.Equal(t, 3, testutil.Stock(t, conn, variant.ID))
}

func TestReleaseRestoresStock(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 0, Inactive: true})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(context.Background(), tx, variant.ID, 4)
	})
	require.NoError(t, err)
	require.Equal(t, 4, testutil.Stock(t, conn, variant.ID))

	err = conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Release(context.Background(), tx, uuid.New(), 1)
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestAdjustStock(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	variant := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 5})
	ctx := context.Background()

	require.NoError(t, ledger.AdjustStock(ctx, conn, variant.ID, 3))
	require.Equal(t, 8, testutil.Stock(t, conn, variant.ID))

	require.NoError(t, ledger.AdjustStock(ctx, conn, variant.ID, -6))
	require.Equal(t, 2, testutil.Stock(t, conn, variant.ID))

	require.NoError(t, ledger.AdjustStock(ctx, conn, variant.ID, 0))
	require.Equal(t, 2, testutil.Stock(t, conn, variant.ID))

	err := ledger.AdjustStock(ctx, conn, variant.ID, -3)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	require.Equal(t, 2, testutil.Stock(t, conn, variant.ID))
}

func TestReserveAllRollsBackOnFirstShortage(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	plenty := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 10})
	scarce := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 1})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReserveAll(context.Background(), tx, []Line{
			{VariantID: plenty.ID, Qty: 4},
			{VariantID: scarce.ID, Qty: 2},
		})
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	require.Equal(t, 10, testutil.Stock(t, conn, plenty.ID))
	require.Equal(t, 1, testutil.Stock(t, conn, scarce.ID))
}

func TestReserveAllThenReleaseAll(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := newLedger(t, conn)
	a := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 3})
	b := testutil.SeedVariant(t, conn, testutil.VariantSeed{Stock: 3})
	lines := []Line{{VariantID: a.ID, Qty: 1}, {VariantID: b.ID, Qty: 3}}
	ctx := context.Background()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReserveAll(ctx, tx, lines)
	}))
	require.Equal(t, 2, testutil.Stock(t, conn, a.ID))
	require.Equal(t, 0, testutil.Stock(t, conn, b.ID))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReleaseAll(ctx, tx, lines)
	}))
	require.Equal(t, 3, testutil.Stock(t, conn, a.ID))
	require.Equal(t, 3, testutil.Stock(t, conn, b.ID))
}

func TestSortedLinesAscendingByVariantID(t *testing.T) {
	lines := make([]Line, 0, 8)
	for i := 0; i < 8; i++ {
		lines = append(lines, Line{VariantID: uuid.New(), Qty: 1})
	}
	sorted := sortedLines(lines)
	require.Len(t, sorted, len(lines))
	for i := 1; i < len(sorted); i++ {
		require.LessOrEqual(t, bytes.Compare(sorted[i-1].VariantID[:], sorted[i].VariantID[:]), 0)
	}
}
