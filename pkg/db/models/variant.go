package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Variant is the unit of inventory: one size/color combination of a product.
// Stock is only mutated by the stock ledger inside an order transaction.
type Variant struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index"`
	Product    *Product       `gorm:"foreignKey:ProductID"`
	SKU        string         `gorm:"column:sku"`
	Size       string         `gorm:"column:size"`
	Color      string         `gorm:"column:color"`
	PriceMinor int64          `gorm:"column:price_minor;not null"`
	Currency   enums.Currency `gorm:"column:currency;type:varchar(3);not null"`
	Stock      int            `gorm:"column:stock;not null;check:stock >= 0"`
	IsActive   bool           `gorm:"column:is_active;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
