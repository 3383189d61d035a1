package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// MaxLineQuantity caps the units of one variant in a single order.
const MaxLineQuantity = 10000

// CartLine is one (variant, quantity) pair submitted by the client. Prices
// are never accepted from the client.
type CartLine struct {
	VariantID uuid.UUID
	Quantity  int
}

// DedupeLines merges lines that reference the same variant, summing their
// quantities and keeping the order of first appearance.
func DedupeLines(lines []CartLine) ([]CartLine, error) {
	index := make(map[uuid.UUID]int, len(lines))
	out := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		if line.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"variantId": line.VariantID, "quantity": line.Quantity})
		}
		pos, seen := index[line.VariantID]
		if !seen {
			pos = len(out)
			index[line.VariantID] = pos
			out = append(out, CartLine{VariantID: line.VariantID})
		}
		if line.Quantity > MaxLineQuantity-out[pos].Quantity {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity exceeds %d units per variant", MaxLineQuantity).
				WithDetails(map[string]any{"variantId": line.VariantID, "max": MaxLineQuantity})
		}
		out[pos].Quantity += line.Quantity
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	return out, nil
}

// LedgerLines converts cart lines to stock ledger reservations.
func LedgerLines(lines []CartLine) []inventory.Line {
	out := make([]inventory.Line, len(lines))
	for i, line := range lines {
		out[i] = inventory.Line{VariantID: line.VariantID, Qty: line.Quantity}
	}
	return out
}

// ShippingRates are the configured shipping costs in minor units. A zero
// FreeOverMinor disables free shipping.
type ShippingRates struct {
	StandardMinor int64
	PickupMinor   int64
	FreeOverMinor int64
}

// Totals are the computed order amounts in minor units.
type Totals struct {
	Currency      enums.Currency
	ItemsMinor    int64
	ShippingMinor int64
	GrandMinor    int64
}

// ComputeTotals prices lines from the authoritative catalog views. All lines
// must share one currency.
func ComputeTotals(lines []CartLine, views map[uuid.UUID]inventory.VariantView, method enums.ShippingMethod, rates ShippingRates, fallback enums.Currency) (Totals, error) {
	totals := Totals{}
	for _, line := range lines {
		view := views[line.VariantID]
		currency := view.Currency
		if currency == "" {
			currency = fallback
		}
		if totals.Currency == "" {
			totals.Currency = currency
		} else if totals.Currency != currency {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "cart mixes currencies").
				WithDetails(map[string]any{"currencies": []enums.Currency{totals.Currency, currency}})
		}
		totals.ItemsMinor += view.PriceMinor * int64(line.Quantity)
	}

	switch method {
	case enums.ShippingPickup:
		totals.ShippingMinor = rates.PickupMinor
	default:
		totals.ShippingMinor = rates.StandardMinor
		if rates.FreeOverMinor > 0 && totals.ItemsMinor >= rates.FreeOverMinor {
			totals.ShippingMinor = 0
		}
	}
	totals.GrandMinor = totals.ItemsMinor + totals.ShippingMinor
	return totals, nil
}
