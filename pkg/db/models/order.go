package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the aggregate root for a purchase. Rows are never deleted.
type Order struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID               *uuid.UUID              `gorm:"column:user_id;type:uuid;index"`
	Email                string                  `gorm:"column:email"`
	Currency             enums.Currency          `gorm:"column:currency;type:varchar(3);not null"`
	ItemsTotalMinor      int64                   `gorm:"column:items_total_minor;not null"`
	ShippingMinor        int64                   `gorm:"column:shipping_minor;not null"`
	GrandTotalMinor      int64                   `gorm:"column:grand_total_minor;not null"`
	Status               enums.OrderStatus       `gorm:"column:status;type:varchar(32);not null;index:idx_orders_status_created,priority:1"`
	PaymentStatus        enums.PaymentStatus     `gorm:"column:payment_status;type:varchar(32);not null"`
	FulfillmentStatus    enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:varchar(32);not null"`
	ShippingMethod       enums.ShippingMethod    `gorm:"column:shipping_method;type:varchar(32);not null"`
	IsCancelled          bool                    `gorm:"column:is_cancelled;not null"`
	ReturnReason         *string                 `gorm:"column:return_reason"`
	PaymentFailureReason *string                 `gorm:"column:payment_failure_reason"`
	PaidAt               *time.Time              `gorm:"column:paid_at"`
	CancelledAt          *time.Time              `gorm:"column:cancelled_at"`
	ExpiredAt            *time.Time              `gorm:"column:expired_at"`
	CreatedAt            time.Time               `gorm:"column:created_at;index:idx_orders_status_created,priority:2"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	Items                []OrderItem             `gorm:"foreignKey:OrderID"`
	History              []OrderHistory          `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return nil
}
