package cart

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// View is a cart with its computed totals.
type View struct {
	*models.Cart
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func newView(c *models.Cart) *View {
	v := &View{Cart: c, Subtotal: decimal.Zero}
	for _, item := range c.Items {
		v.ItemCount += item.Quantity
		v.Subtotal = v.Subtotal.Add(item.LineTotal())
	}
	v.Subtotal = v.Subtotal.Round(2)
	return v
}

type AddItemInput struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type Service struct {
	store  *repository.Store
	logger *zap.Logger
}

func NewService(store *repository.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.Named("cart"),
	}
}

// Get returns the user's active cart, creating an empty one if needed.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	c, err := s.store.GetOrCreateActiveCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newView(c), nil
}

// AddItem puts a product into the cart at its current effective price. A
// line for the same product and variant has its quantity increased instead.
func (s *Service) AddItem(ctx context.Context, userID string, in AddItemInput) (*View, error) {
	if in.Quantity < 1 {
		return nil, apperr.Invalid("invalid cart item", apperr.FieldError{Field: "quantity", Message: "must be at least 1"})
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.GetOrCreateActiveCart(ctx, userID)
		if err != nil {
			return err
		}
		product, variant, err := loadSellable(ctx, tx, in.ProductID, in.VariantID)
		if err != nil {
			return err
		}

		line, err := tx.FindCartLine(ctx, c.ID, in.ProductID, in.VariantID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		wanted := in.Quantity
		if line != nil {
			wanted += line.Quantity
		}
		if err := checkStock(product, variant, wanted); err != nil {
			return err
		}

		if line != nil {
			return tx.UpdateCartItemQuantity(ctx, line.ID, wanted)
		}
		return tx.CreateCartItem(ctx, &models.CartItem{
			ID:        uuid.NewString(),
			CartID:    c.ID,
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Quantity:  in.Quantity,
			Price:     product.EffectivePrice(variant),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart item added",
		zap.String("user_id", userID),
		zap.String("product_id", in.ProductID),
		zap.Int("quantity", in.Quantity))

	return s.Get(ctx, userID)
}

// UpdateItem sets the quantity of one line. The snapshot price is kept.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, qty int) (*View, error) {
	if qty < 1 {
		return nil, apperr.Invalid("invalid cart item", apperr.FieldError{Field: "quantity", Message: "must be at least 1"})
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.ActiveCart(ctx, userID, false)
		if err != nil {
			return err
		}
		item, err := tx.GetCartItem(ctx, c.ID, itemID)
		if err != nil {
			return err
		}
		product, variant, err := loadSellable(ctx, tx, item.ProductID, item.VariantID)
		if err != nil {
			return err
		}
		if err := checkStock(product, variant, qty); err != nil {
			return err
		}
		return tx.UpdateCartItemQuantity(ctx, item.ID, qty)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*View, error) {
	c, err := s.store.ActiveCart(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteCartItem(ctx, c.ID, itemID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) (*View, error) {
	c, err := s.store.GetOrCreateActiveCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearCart(ctx, c.ID); err != nil {
		return nil, err
	}
	c.Items = []models.CartItem{}
	return newView(c), nil
}

// loadSellable returns the product and optional variant, rejecting anything
// that is missing, inactive or mismatched.
func loadSellable(ctx context.Context, store *repository.Store, productID, variantID string) (*models.Product, *models.ProductVariant, error) {
	product, err := store.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if !product.IsActive {
		return nil, nil, apperr.Validation("product %s is not available", product.Name)
	}
	if variantID == "" {
		return product, nil, nil
	}
	variant, err := store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, nil, err
	}
	if variant.ProductID != product.ID {
		return nil, nil, apperr.Validation("variant %s does not belong to product %s", variantID, product.ID)
	}
	if !variant.IsActive {
		return nil, nil, apperr.Validation("variant %s is not available", variantID)
	}
	return product, variant, nil
}

func checkStock(p *models.Product, v *models.ProductVariant, wanted int) error {
	available, tracked := p.Available(v)
	if tracked && available < wanted {
		return apperr.Stock("insufficient stock for %s: %d available", p.Name, available)
	}
	return nil
}
