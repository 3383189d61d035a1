package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Amount is an integer count of minor units in a currency.
type Amount struct {
	Minor    int64          `json:"minor"`
	Currency enums.Currency `json:"currency"`
	Display  string         `json:"amount"`
}

// exponent is the number of minor-unit digits for every supported currency.
const exponent = 2

// Decimal converts minor units to a decimal major-unit value.
func Decimal(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-exponent)
}

// Format renders minor units as a fixed two-decimal string, e.g. 1995 -> "19.95".
func Format(minor int64) string {
	return Decimal(minor).StringFixed(exponent)
}

// New builds an Amount with its display string filled in.
func New(minor int64, currency enums.Currency) Amount {
	return Amount{Minor: minor, Currency: currency, Display: Format(minor)}
}

// ParseMinor converts a major-unit string such as "19.95" to minor units.
// Values with more precision than the currency allows are rejected.
func ParseMinor(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(exponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, errTooPrecise(value)
	}
	return shifted.IntPart(), nil
}

// MulQty multiplies a unit price by a quantity.
func MulQty(unitMinor int64, qty int) int64 {
	return unitMinor * int64(qty)
}

type errTooPrecise string

func (e errTooPrecise) Error() string {
	return "amount " + string(e) + " has more than two decimal places"
}
