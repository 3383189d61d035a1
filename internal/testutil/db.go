package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

// OpenDB returns an isolated in-memory sqlite database with every engine
// table migrated.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storefront_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(migrate.Models()...))
	return conn
}

// VariantSeed describes a catalog row for tests. Zero values get defaults.
type VariantSeed struct {
	ProductName     string
	ProductInactive bool
	Size            string
	Color           string
	PriceMinor      int64
	Stock           int
	Inactive        bool
}

// SeedVariant creates a product with one variant and returns the variant.
func SeedVariant(t testing.TB, conn *gorm.DB, seed VariantSeed) models.Variant {
	t.Helper()
	if seed.ProductName == "" {
		seed.ProductName = "Camiseta"
	}
	if seed.PriceMinor == 0 {
		seed.PriceMinor = 1999
	}
	product := models.Product{Name: seed.ProductName, IsActive: !seed.ProductInactive}
	require.NoError(t, conn.Create(&product).Error)
	variant := models.Variant{
		ProductID:  product.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Size:       seed.Size,
		Color:      seed.Color,
		PriceMinor: seed.PriceMinor,
		Currency:   enums.CurrencyEUR,
		Stock:      seed.Stock,
		IsActive:   !seed.Inactive,
	}
	require.NoError(t, conn.Create(&variant).Error)
	return variant
}

// Stock reads the current stock of a variant.
func Stock(t testing.TB, conn *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var variant models.Variant
	require.NoError(t, conn.First(&variant, "id = ?", variantID).Error)
	return variant.Stock
}
