package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemSnapshot freezes catalog data at purchase time. It is written once and
// never follows later catalog edits.
type ItemSnapshot struct {
	ProductName string `gorm:"column:product_name;not null"`
	PriceMinor  int64  `gorm:"column:price_minor;not null"`
	Size        string `gorm:"column:size"`
	Color       string `gorm:"column:color"`
	SKU         string `gorm:"column:sku"`
}

// OrderItem is one purchased line. VariantID is a weak reference and becomes
// nil if the variant is hard-deleted.
type OrderItem struct {
	ID                      uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                 uuid.UUID    `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID               *uuid.UUID   `gorm:"column:variant_id;type:uuid"`
	Snapshot                ItemSnapshot `gorm:"embedded;embeddedPrefix:snapshot_"`
	Quantity                int          `gorm:"column:quantity;not null"`
	QuantityReturned        int          `gorm:"column:quantity_returned;not null"`
	QuantityReturnRequested int          `gorm:"column:quantity_return_requested;not null"`
	CreatedAt               time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Remaining is the number of units still held by the buyer.
func (i OrderItem) Remaining() int {
	return i.Quantity - i.QuantityReturned
}

// LineTotalMinor is the snapshot price times the ordered quantity.
func (i OrderItem) LineTotalMinor() int64 {
	return i.Snapshot.PriceMinor * int64(i.Quantity)
}
