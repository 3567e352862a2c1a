package store

import (
	"fmt"
	"strings"
	"testing"

	"bookshop/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB gives every test its own shared-cache in-memory database so
// concurrent connections observe the same data under real transactions.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=10000&_txlock=immediate", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.InventoryRecord{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, title string, priceCents int64) *model.Product {
	t.Helper()
	p := &model.Product{
		SKU:        "SKU-" + uuid.NewString()[:8],
		Title:      title,
		Author:     "test author",
		PriceCents: priceCents,
	}
	require.NoError(t, CreateProduct(db, p))
	return p
}
