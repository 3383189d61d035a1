package inventory

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Line is one variant quantity to reserve or release.
type Line struct {
	VariantID uuid.UUID
	Qty       int
}

// Ledger mutates variant stock inside the caller's transaction. It never
// begins or commits a transaction itself; any error it returns must abort
// the enclosing one.
type Ledger struct {
	catalog *Catalog
}

func NewLedger(catalog *Catalog) (*Ledger, error) {
	if catalog == nil {
		return nil, errors.New("catalog required")
	}
	return &Ledger{catalog: catalog}, nil
}

// Reserve takes qty units with a single guarded update so stock can never
// drop below zero, even under concurrent buyers.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validate(tx, variantID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND is_active = ? AND stock >= ?", variantID, true, qty).
		Where("product_id IN (SELECT id FROM products WHERE is_active = ?)", true).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	view, err := l.catalog.getVariant(ctx, tx, variantID)
	if err != nil {
		return err
	}
	return NewInsufficientStock(view, qty)
}

// Release returns qty units. Callers guarantee each reservation is released
// at most once.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validate(tx, variantID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return NewVariantNotFound(variantID)
	}
	return nil
}

// AdjustStock applies a signed delta: positive restocks, negative takes
// units under the same guard as Reserve, zero does nothing.
func (l *Ledger) AdjustStock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, delta int) error {
	switch {
	case delta > 0:
		return l.Release(ctx, tx, variantID, delta)
	case delta < 0:
		return l.Reserve(ctx, tx, variantID, -delta)
	default:
		return nil
	}
}

// ReserveAll reserves every line in ascending variant id order so two
// transactions touching the same variants lock rows in the same order.
// The first failure is returned and nothing is undone here; the caller's
// rollback restores stock.
func (l *Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, line := range sortedLines(lines) {
		if err := l.Reserve(ctx, tx, line.VariantID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll releases every line in ascending variant id order.
func (l *Ledger) ReleaseAll(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, line := range sortedLines(lines) {
		if err := l.Release(ctx, tx, line.VariantID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func sortedLines(lines []Line) []Line {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b Line) int {
		return bytes.Compare(a.VariantID[:], b.VariantID[:])
	})
	return sorted
}

func validate(tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"variantId": variantID, "quantity": qty})
	}
	return nil
}
