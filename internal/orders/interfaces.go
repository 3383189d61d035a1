package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	ListStalePending(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.Order, error)
	CompareAndSwap(ctx context.Context, expected models.Order, updates map[string]any) (bool, error)
	UpdateItemQuantities(ctx context.Context, orderID uuid.UUID, update ItemUpdate) error
	AppendHistory(ctx context.Context, entry *models.OrderHistory) error
}

// StockReleaser returns units to the stock ledger inside tx, locking variant
// rows in the same order checkout reserves them.
type StockReleaser interface {
	ReleaseAll(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}
