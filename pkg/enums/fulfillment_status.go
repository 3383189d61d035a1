package enums

import "fmt"

// FulfillmentStatus advances independently of OrderStatus once an order is paid.
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled    FulfillmentStatus = "UNFULFILLED"
	FulfillmentPreparing      FulfillmentStatus = "PREPARING"
	FulfillmentShipped        FulfillmentStatus = "SHIPPED"
	FulfillmentReadyForPickup FulfillmentStatus = "READY_FOR_PICKUP"
	FulfillmentDelivered      FulfillmentStatus = "DELIVERED"
	FulfillmentReturned       FulfillmentStatus = "RETURNED"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentUnfulfilled,
	FulfillmentPreparing,
	FulfillmentShipped,
	FulfillmentReadyForPickup,
	FulfillmentDelivered,
	FulfillmentReturned,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// HasLeftWarehouse reports whether goods are out of the seller's hands.
func (f FulfillmentStatus) HasLeftWarehouse() bool {
	switch f {
	case FulfillmentShipped, FulfillmentReadyForPickup, FulfillmentDelivered, FulfillmentReturned:
		return true
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
