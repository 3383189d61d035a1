package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderHistory is an append-only audit row written in the same transaction as
// the change it records.
type OrderHistory struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Type           enums.HistoryType `gorm:"column:type;type:varchar(32);not null"`
	SnapshotStatus string            `gorm:"column:snapshot_status;not null"`
	Actor          string            `gorm:"column:actor;not null"`
	Reason         *string           `gorm:"column:reason"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
}

func (OrderHistory) TableName() string { return "order_history" }

func (h *OrderHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return nil
}
