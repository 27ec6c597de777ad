package repository

import (
	"context"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(p).Error, "product")
}

func (s *Store) CreateVariant(ctx context.Context, v *models.ProductVariant) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(v).Error, "product variant")
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "product")
	}
	return &p, nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (*models.ProductVariant, error) {
	var v models.ProductVariant
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, apperr.FromDB(err, "product variant")
	}
	return &v, nil
}

// LockProducts loads and row-locks the given products, keyed by id.
// Missing ids are simply absent from the map.
func (s *Store) LockProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	ids = sortedUnique(ids)
	out := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	q := s.forUpdate(s.db.WithContext(ctx)).Where("id IN ?", ids).Order("id")
	if err := q.Find(&products).Error; err != nil {
		return nil, apperr.FromDB(err, "product")
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (s *Store) LockVariants(ctx context.Context, ids []string) (map[string]*models.ProductVariant, error) {
	ids = sortedUnique(ids)
	out := make(map[string]*models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var variants []models.ProductVariant
	q := s.forUpdate(s.db.WithContext(ctx)).Where("id IN ?", ids).Order("id")
	if err := q.Find(&variants).Error; err != nil {
		return nil, apperr.FromDB(err, "product variant")
	}
	for i := range variants {
		out[variants[i].ID] = &variants[i]
	}
	return out, nil
}

// DecrementStock removes qty units from a product; it fails with a stock
// error instead of letting quantity go negative.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	return s.decrement(ctx, &models.Product{}, productID, qty)
}

func (s *Store) DecrementVariantStock(ctx context.Context, variantID string, qty int) error {
	return s.decrement(ctx, &models.ProductVariant{}, variantID, qty)
}

func (s *Store) decrement(ctx context.Context, model any, id string, qty int) error {
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND quantity >= ?", id, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return apperr.FromDB(res.Error, "stock")
	}
	if res.RowsAffected == 0 {
		return apperr.Stock("insufficient stock for item %s", id)
	}
	return nil
}

// RestoreStock returns units to a tracked product. Products deleted since
// the order was placed are skipped.
func (s *Store) RestoreStock(ctx context.Context, productID string, qty int) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND track_inventory = ?", productID, true).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty))
	return apperr.FromDB(res.Error, "stock")
}

// RestoreVariantStock returns units to a variant whose product tracks
// inventory.
func (s *Store) RestoreVariantStock(ctx context.Context, variantID string, qty int) error {
	tracked := s.db.Model(&models.Product{}).Select("id").Where("track_inventory = ?", true)
	res := s.db.WithContext(ctx).Model(&models.ProductVariant{}).
		Where("id = ? AND product_id IN (?)", variantID, tracked).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty))
	return apperr.FromDB(res.Error, "stock")
}
