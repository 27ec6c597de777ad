package repository

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActiveCart returns the user's active cart with its items. With lock set
// the cart row is locked for the rest of the transaction.
func (s *Store) ActiveCart(ctx context.Context, userID string, lock bool) (*models.Cart, error) {
	q := s.db.WithContext(ctx)
	if lock {
		q = s.forUpdate(q)
	}
	var cart models.Cart
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at, id")
	}).Where("active_owner = ?", userID).First(&cart).Error
	if err != nil {
		return nil, apperr.FromDB(err, "active cart")
	}
	return &cart, nil
}

// GetOrCreateActiveCart returns the active cart, creating one when the user
// has none.
func (s *Store) GetOrCreateActiveCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.ActiveCart(ctx, userID, false)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return s.CreateActiveCart(ctx, userID)
}

// CreateActiveCart inserts an active cart for the user. When a concurrent
// create won the unique index the winner's cart is returned instead. It is
// reread with a locking read so a transaction sees the committed row rather
// than its own snapshot.
func (s *Store) CreateActiveCart(ctx context.Context, userID string) (*models.Cart, error) {
	owner := userID
	cart := &models.Cart{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      models.CartActive,
		ActiveOwner: &owner,
	}
	err := apperr.FromDB(s.db.WithContext(ctx).Create(cart).Error, "active cart")
	if errors.Is(err, apperr.ErrConflict) {
		return s.ActiveCart(ctx, userID, true)
	}
	if err != nil {
		return nil, err
	}
	cart.Items = []models.CartItem{}
	return cart, nil
}

func (s *Store) FindCartLine(ctx context.Context, cartID, productID, variantID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, productID, variantID).
		First(&item).Error
	if err != nil {
		return nil, apperr.FromDB(err, "cart item")
	}
	return &item, nil
}

func (s *Store) GetCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	if err := s.db.WithContext(ctx).Where("cart_id = ? AND id = ?", cartID, itemID).First(&item).Error; err != nil {
		return nil, apperr.FromDB(err, "cart item")
	}
	return &item, nil
}

func (s *Store) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(item).Error, "cart item")
}

func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID string, qty int) error {
	res := s.db.WithContext(ctx).Model(&models.CartItem{}).Where("id = ?", itemID).Update("quantity", qty)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "cart item")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	res := s.db.WithContext(ctx).Where("cart_id = ? AND id = ?", cartID, itemID).Delete(&models.CartItem{})
	if res.Error != nil {
		return apperr.FromDB(res.Error, "cart item")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("cart item not found")
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartID string) error {
	err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
	return apperr.FromDB(err, "cart")
}

// ConvertCart marks the cart converted, releases the active slot and
// deletes its items.
func (s *Store) ConvertCart(ctx context.Context, cartID string) error {
	err := s.db.WithContext(ctx).Model(&models.Cart{}).Where("id = ?", cartID).
		Updates(map[string]any{"status": models.CartConverted, "active_owner": nil}).Error
	if err != nil {
		return apperr.FromDB(err, "cart")
	}
	return s.ClearCart(ctx, cartID)
}
