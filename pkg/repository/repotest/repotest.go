// Package repotest provides an in-memory Store for tests.
package repotest

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewStore opens a migrated in-memory SQLite store. A single connection
// serializes transactions the way row locks would on MySQL.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repository.NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

// Product inserts an active, inventory-tracked product.
func Product(t testing.TB, store *repository.Store, name, price string, qty int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:             uuid.NewString(),
		Name:           name,
		SKU:            "SKU-" + uuid.NewString()[:8],
		Price:          decimal.RequireFromString(price),
		Quantity:       qty,
		TrackInventory: true,
		IsActive:       true,
	}
	if err := store.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}
