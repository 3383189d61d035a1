package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// OrderItemView is the client representation of an order line.
type OrderItemView struct {
	ID                      uuid.UUID    `json:"id"`
	VariantID               *uuid.UUID   `json:"variantId,omitempty"`
	ProductName             string       `json:"productName"`
	Size                    string       `json:"size,omitempty"`
	Color                   string       `json:"color,omitempty"`
	SKU                     string       `json:"sku,omitempty"`
	UnitPrice               money.Amount `json:"unitPrice"`
	LineTotal               money.Amount `json:"lineTotal"`
	Quantity                int          `json:"quantity"`
	QuantityReturned        int          `json:"quantityReturned"`
	QuantityReturnRequested int          `json:"quantityReturnRequested"`
}

// OrderHistoryView is one audit entry.
type OrderHistoryView struct {
	Type      enums.HistoryType `json:"type"`
	Status    string            `json:"status"`
	Actor     string            `json:"actor"`
	Reason    *string           `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// OrderView is the client representation of an order.
type OrderView struct {
	ID                   uuid.UUID               `json:"id"`
	UserID               *uuid.UUID              `json:"userId,omitempty"`
	Email                string                  `json:"email,omitempty"`
	Status               enums.OrderStatus       `json:"status"`
	PaymentStatus        enums.PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus    enums.FulfillmentStatus `json:"fulfillmentStatus"`
	ShippingMethod       enums.ShippingMethod    `json:"shippingMethod"`
	IsCancelled          bool                    `json:"isCancelled"`
	ItemsTotal           money.Amount            `json:"itemsTotal"`
	Shipping             money.Amount            `json:"shipping"`
	GrandTotal           money.Amount            `json:"grandTotal"`
	ReturnReason         *string                 `json:"returnReason,omitempty"`
	PaymentFailureReason *string                 `json:"paymentFailureReason,omitempty"`
	PaidAt               *time.Time              `json:"paidAt,omitempty"`
	CancelledAt          *time.Time              `json:"cancelledAt,omitempty"`
	ExpiredAt            *time.Time              `json:"expiredAt,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
	Items                []OrderItemView         `json:"items"`
	History              []OrderHistoryView      `json:"history,omitempty"`
}

// NewOrderView renders an order with money as both minor units and decimals.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:                   order.ID,
		UserID:               order.UserID,
		Email:                order.Email,
		Status:               order.Status,
		PaymentStatus:        order.PaymentStatus,
		FulfillmentStatus:    order.FulfillmentStatus,
		ShippingMethod:       order.ShippingMethod,
		IsCancelled:          order.IsCancelled,
		ItemsTotal:           money.New(order.ItemsTotalMinor, order.Currency),
		Shipping:             money.New(order.ShippingMinor, order.Currency),
		GrandTotal:           money.New(order.GrandTotalMinor, order.Currency),
		ReturnReason:         order.ReturnReason,
		PaymentFailureReason: order.PaymentFailureReason,
		PaidAt:               order.PaidAt,
		CancelledAt:          order.CancelledAt,
		ExpiredAt:            order.ExpiredAt,
		CreatedAt:            order.CreatedAt,
		Items:                make([]OrderItemView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ID:                      item.ID,
			VariantID:               item.VariantID,
			ProductName:             item.Snapshot.ProductName,
			Size:                    item.Snapshot.Size,
			Color:                   item.Snapshot.Color,
			SKU:                     item.Snapshot.SKU,
			UnitPrice:               money.New(item.Snapshot.PriceMinor, order.Currency),
			LineTotal:               money.New(item.LineTotalMinor(), order.Currency),
			Quantity:                item.Quantity,
			QuantityReturned:        item.QuantityReturned,
			QuantityReturnRequested: item.QuantityReturnRequested,
		})
	}
	for _, entry := range order.History {
		view.History = append(view.History, OrderHistoryView{
			Type:      entry.Type,
			Status:    entry.SnapshotStatus,
			Actor:     entry.Actor,
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		})
	}
	return view
}

// NewOrderPageView renders a page of orders without their history.
func NewOrderPageView(page pagination.Page[models.Order]) pagination.Page[OrderView] {
	out := pagination.Page[OrderView]{
		Items:      make([]OrderView, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Items {
		out.Items = append(out.Items, NewOrderView(&page.Items[i]))
	}
	return out
}
