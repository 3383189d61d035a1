package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// VariantView is the authoritative sellable state of a variant. IsActive is
// false when either the variant or its product is inactive.
type VariantView struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Size        string
	Color       string
	SKU         string
	PriceMinor  int64
	Currency    enums.Currency
	Stock       int
	IsActive    bool
}

// Label renders "Product (size, color)" for error messages.
func (v VariantView) Label() string {
	attrs := []string{}
	for _, part := range []string{v.Size, v.Color} {
		if strings.TrimSpace(part) != "" {
			attrs = append(attrs, part)
		}
	}
	if len(attrs) == 0 {
		return v.ProductName
	}
	return v.ProductName + " (" + strings.Join(attrs, ", ") + ")"
}

// Sellable reports whether qty units can be sold right now.
func (v VariantView) Sellable(qty int) bool {
	return v.IsActive && v.Stock >= qty
}

type variantRow struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	Size          string
	Color         string
	SKU           string
	PriceMinor    int64
	Currency      enums.Currency
	Stock         int
	VariantActive bool
	ProductActive bool
}

func (r variantRow) view() VariantView {
	return VariantView{
		ID:          r.ID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Size:        r.Size,
		Color:       r.Color,
		SKU:         r.SKU,
		PriceMinor:  r.PriceMinor,
		Currency:    r.Currency,
		Stock:       r.Stock,
		IsActive:    r.VariantActive && r.ProductActive,
	}
}

// Catalog reads variant price and stock joined with their product.
type Catalog struct {
	repo.Base
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{Base: repo.NewBase(db)}
}

func (c *Catalog) query(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return c.Conn(ctx, tx).
		Table("variants AS v").
		Select(`v.id, v.product_id, p.name AS product_name, v.size, v.color, v.sku,
			v.price_minor, v.currency, v.stock, v.is_active AS variant_active, p.is_active AS product_active`).
		Joins("JOIN products AS p ON p.id = v.product_id")
}

// GetVariant returns one variant or a NOT_FOUND error.
func (c *Catalog) GetVariant(ctx context.Context, id uuid.UUID) (VariantView, error) {
	return c.getVariant(ctx, nil, id)
}

func (c *Catalog) getVariant(ctx context.Context, tx *gorm.DB, id uuid.UUID) (VariantView, error) {
	var rows []variantRow
	if err := c.query(ctx, tx).Where("v.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return VariantView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if len(rows) == 0 {
		return VariantView{}, NewVariantNotFound(id)
	}
	return rows[0].view(), nil
}

// GetVariants returns the known variants among ids; unknown ids are absent
// from the map rather than an error.
func (c *Catalog) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]VariantView, error) {
	out := make(map[uuid.UUID]VariantView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []variantRow
	if err := c.query(ctx, nil).Where("v.id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	for _, row := range rows {
		out[row.ID] = row.view()
	}
	return out, nil
}
