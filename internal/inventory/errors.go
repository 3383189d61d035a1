package inventory

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ShortageDetails names the line a buyer could not get, so the client can
// show product, size, color and what is left.
type ShortageDetails struct {
	VariantID   uuid.UUID `json:"variantId"`
	ProductName string    `json:"productName"`
	Size        string    `json:"size,omitempty"`
	Color       string    `json:"color,omitempty"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}

// NewVariantNotFound reports a variant id the catalog does not know.
func NewVariantNotFound(id uuid.UUID) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
		WithDetails(map[string]any{"variantId": id})
}

// NewInsufficientStock reports a variant that cannot cover requested units.
// Inactive variants report zero available.
func NewInsufficientStock(view VariantView, requested int) *pkgerrors.Error {
	available := view.Stock
	if !view.IsActive || available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+view.Label()).
		WithDetails(ShortageDetails{
			VariantID:   view.ID,
			ProductName: view.ProductName,
			Size:        view.Size,
			Color:       view.Color,
			Requested:   requested,
			Available:   available,
		})
}
