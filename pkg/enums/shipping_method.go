package enums

import "fmt"

// ShippingMethod is the buyer's delivery selection at checkout.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingPickup   ShippingMethod = "pickup"
)

// IsValid reports whether the value is a known ShippingMethod.
func (s ShippingMethod) IsValid() bool {
	return s == ShippingStandard || s == ShippingPickup
}

// ParseShippingMethod converts raw input into a ShippingMethod, defaulting to standard.
func ParseShippingMethod(value string) (ShippingMethod, error) {
	if value == "" {
		return ShippingStandard, nil
	}
	s := ShippingMethod(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid shipping method %q", value)
	}
	return s, nil
}
