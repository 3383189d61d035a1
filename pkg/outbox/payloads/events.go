package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedItem is the line summary carried by OrderCreatedEvent.
type OrderCreatedItem struct {
	VariantID   *uuid.UUID `json:"variantId,omitempty"`
	ProductName string     `json:"productName"`
	Size        string     `json:"size,omitempty"`
	Color       string     `json:"color,omitempty"`
	Quantity    int        `json:"quantity"`
	PriceMinor  int64      `json:"priceMinor"`
}

// OrderCreatedEvent is emitted when checkout commits a new order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID            `json:"orderId"`
	UserID          *uuid.UUID           `json:"userId,omitempty"`
	Email           string               `json:"email,omitempty"`
	GrandTotalMinor int64                `json:"grandTotalMinor"`
	Currency        enums.Currency       `json:"currency"`
	ShippingMethod  enums.ShippingMethod `json:"shippingMethod"`
	PaymentMethod   string               `json:"paymentMethod,omitempty"`
	Items           []OrderCreatedItem   `json:"items"`
}

// OrderStatusChangedEvent is emitted for every applied transition.
type OrderStatusChangedEvent struct {
	OrderID           uuid.UUID               `json:"orderId"`
	FromStatus        enums.OrderStatus       `json:"fromStatus"`
	ToStatus          enums.OrderStatus       `json:"toStatus"`
	PaymentStatus     enums.PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillmentStatus"`
	Action            string                  `json:"action"`
	Actor             string                  `json:"actor"`
	OccurredAt        time.Time               `json:"occurredAt"`
}

// OrderIncidentEvent flags an order an operator must look at, e.g. a payment
// captured after the order was closed.
type OrderIncidentEvent struct {
	OrderID    uuid.UUID         `json:"orderId"`
	Status     enums.OrderStatus `json:"status"`
	Action     string            `json:"action"`
	Reason     string            `json:"reason"`
	OccurredAt time.Time         `json:"occurredAt"`
}
