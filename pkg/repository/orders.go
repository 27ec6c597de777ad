package repository

import (
	"context"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(o).Error, "order")
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at, id")
	})
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := preloadItems(s.db.WithContext(ctx)).First(&o, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "order")
	}
	return &o, nil
}

// LockOrder loads the order with a row lock held until the transaction ends.
func (s *Store) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	q := preloadItems(s.forUpdate(s.db.WithContext(ctx)))
	if err := q.First(&o, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "order")
	}
	return &o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "order")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("order not found")
	}
	return nil
}

type OrderFilter struct {
	UserID        string
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	Page          int
	Limit         int
}

// Normalized applies the default page (1) and limit (10, at most 100).
func (f OrderFilter) Normalized() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	return f
}

// ListOrders returns one page of orders, newest first, and the total count.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	f = f.Normalized()
	filter := func(db *gorm.DB) *gorm.DB {
		if f.UserID != "" {
			db = db.Where("user_id = ?", f.UserID)
		}
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.PaymentStatus != "" {
			db = db.Where("payment_status = ?", f.PaymentStatus)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "order")
	}

	var orders []models.Order
	err := preloadItems(s.db.WithContext(ctx)).Scopes(filter).
		Order("created_at DESC, id").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, apperr.FromDB(err, "order")
	}
	return orders, total, nil
}

type OrderStats struct {
	TotalOrders  int64            `json:"total_orders"`
	TotalRevenue decimal.Decimal  `json:"total_revenue"`
	ByStatus     map[string]int64 `json:"orders_by_status"`
	Recent       []models.Order   `json:"recent_orders"`
}

// OrderStats aggregates order counts, paid revenue and the latest orders.
func (s *Store) OrderStats(ctx context.Context, recent int) (*OrderStats, error) {
	db := s.db.WithContext(ctx)
	stats := &OrderStats{ByStatus: map[string]int64{}}

	if err := db.Model(&models.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, apperr.FromDB(err, "order")
	}

	var revenue decimal.NullDecimal
	row := db.Model(&models.Order{}).
		Where("payment_status = ?", models.PaymentPaid).
		Select("SUM(total)").Row()
	if err := row.Scan(&revenue); err != nil {
		return nil, apperr.FromDB(err, "order")
	}
	stats.TotalRevenue = decimal.Zero
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal.Round(2)
	}

	var counts []struct {
		Status string
		Count  int64
	}
	err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&counts).Error
	if err != nil {
		return nil, apperr.FromDB(err, "order")
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
	}

	if err := db.Order("created_at DESC, id").Limit(recent).Find(&stats.Recent).Error; err != nil {
		return nil, apperr.FromDB(err, "order")
	}
	return stats, nil
}
