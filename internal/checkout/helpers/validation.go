package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ValidateAvailability checks every line against the catalog before any
// stock is touched. A cart where nothing is sellable any more is stale as a
// whole; otherwise the first bad line is reported by name.
func ValidateAvailability(lines []CartLine, views map[uuid.UUID]inventory.VariantView) error {
	live := 0
	for _, line := range lines {
		if view, ok := views[line.VariantID]; ok && view.IsActive {
			live++
		}
	}
	if live == 0 {
		return pkgerrors.New(pkgerrors.CodeCartStale, "cart is stale: none of its products are available")
	}

	for _, line := range lines {
		view, ok := views[line.VariantID]
		if !ok {
			return inventory.NewVariantNotFound(line.VariantID)
		}
		if !view.Sellable(line.Quantity) {
			return inventory.NewInsufficientStock(view, line.Quantity)
		}
	}
	return nil
}
