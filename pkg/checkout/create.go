package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ItemInput struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CreateOrderInput orders the given items, or the active cart when Items is
// empty.
type CreateOrderInput struct {
	Items           []ItemInput          `json:"items" binding:"omitempty,dive"`
	ShippingAddress models.Address       `json:"shipping_address"`
	BillingAddress  *models.Address      `json:"billing_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	CouponCode      string               `json:"coupon_code"`
	Notes           string               `json:"notes"`
	IdempotencyKey  string               `json:"-"`
}

func (in *CreateOrderInput) validate() error {
	fields := in.ShippingAddress.Validate("shipping_address")
	if in.BillingAddress != nil {
		fields = append(fields, in.BillingAddress.Validate("billing_address")...)
	}
	if !in.PaymentMethod.Valid() {
		fields = append(fields, apperr.FieldError{
			Field:   "payment_method",
			Message: "must be one of card, paypal, cash_on_delivery, bank_transfer",
		})
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			fields = append(fields, apperr.FieldError{Field: fmt.Sprintf("items[%d].product_id", i), Message: "is required"})
		}
		if item.Quantity < 1 {
			fields = append(fields, apperr.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be at least 1"})
		}
	}
	if len(fields) > 0 {
		return apperr.Invalid("invalid order", fields...)
	}
	return nil
}

// orderLine is one line being ordered. Price is nil for buy-now lines,
// which are priced from the locked product row.
type orderLine struct {
	productID string
	variantID string
	quantity  int
	price     *decimal.Decimal
}

func (l orderLine) stockKey() string {
	if l.variantID != "" {
		return "v:" + l.variantID
	}
	return "p:" + l.productID
}

func linesFromItems(items []ItemInput) []orderLine {
	index := make(map[string]int, len(items))
	var lines []orderLine
	for _, item := range items {
		l := orderLine{productID: item.ProductID, variantID: item.VariantID, quantity: item.Quantity}
		if i, ok := index[l.stockKey()]; ok {
			lines[i].quantity += l.quantity
			continue
		}
		index[l.stockKey()] = len(lines)
		lines = append(lines, l)
	}
	return lines
}

func linesFromCart(c *models.Cart) []orderLine {
	lines := make([]orderLine, 0, len(c.Items))
	for _, item := range c.Items {
		price := item.Price
		lines = append(lines, orderLine{
			productID: item.ProductID,
			variantID: item.VariantID,
			quantity:  item.Quantity,
			price:     &price,
		})
	}
	return lines
}

func newOrderNumber(now int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%d-%s", now, strings.ToUpper(suffix))
}

// CreateOrder places an order for userID. Product checks, stock
// decrements, promotion counters and cart conversion commit together or
// not at all.
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	reserved, err := s.reserveIdempotencyKey(ctx, userID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var (
		order  *models.Order
		result *promotion.Result
	)
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		order, result, err = s.placeOrder(ctx, tx, userID, in)
		return err
	})
	if err != nil {
		if reserved {
			if rerr := s.cache.ReleaseIdempotencyKey(ctx, userID, in.IdempotencyKey); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("user_id", userID), zap.Error(rerr))
			}
		}
		s.logger.Info("Checkout failed",
			zap.String("user_id", userID),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}

	if result.CouponRedeemed() {
		s.invalidateCoupon(ctx, result.Coupon.Code)
	}
	if reserved {
		if err := s.cache.CompleteIdempotencyKey(ctx, userID, in.IdempotencyKey, order.ID, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to complete idempotency key", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.String("total", order.Total.StringFixed(2)))

	s.dispatch(events.OrderCreated, order, userID, map[string]any{
		"items":    len(order.Items),
		"discount": order.Discount.StringFixed(2),
	})
	return order, nil
}

// reserveIdempotencyKey claims key for the user. It reports whether a
// reservation was made and must later be completed or released.
func (s *Service) reserveIdempotencyKey(ctx context.Context, userID, key string) (bool, error) {
	if key == "" || s.cache == nil {
		return false, nil
	}
	ok, err := s.cache.ReserveIdempotencyKey(ctx, userID, key, s.opts.IdempotencyTTL)
	if err != nil {
		return false, apperr.Unavailable(err, "idempotency store unavailable")
	}
	if ok {
		return true, nil
	}
	orderID, err := s.cache.IdempotencyResult(ctx, userID, key)
	if err == nil && orderID != "" {
		return false, apperr.Conflict("order %s was already created with this idempotency key", orderID)
	}
	return false, apperr.Conflict("a request with this idempotency key is already in progress")
}

func (s *Service) placeOrder(ctx context.Context, tx *repository.Store, userID string, in CreateOrderInput) (*models.Order, *promotion.Result, error) {
	var (
		lines []orderLine
		cart  *models.Cart
	)
	if len(in.Items) > 0 {
		lines = linesFromItems(in.Items)
	} else {
		c, err := tx.ActiveCart(ctx, userID, true)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, nil, err
		}
		if c != nil {
			cart = c
			lines = linesFromCart(c)
		}
	}
	if len(lines) == 0 {
		return nil, nil, apperr.Validation("cart is empty")
	}

	productIDs := make([]string, 0, len(lines))
	var variantIDs []string
	for _, l := range lines {
		productIDs = append(productIDs, l.productID)
		if l.variantID != "" {
			variantIDs = append(variantIDs, l.variantID)
		}
	}
	products, err := tx.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, nil, err
	}
	variants, err := tx.LockVariants(ctx, variantIDs)
	if err != nil {
		return nil, nil, err
	}

	demand := make(map[string]int, len(lines))
	for _, l := range lines {
		demand[l.stockKey()] += l.quantity
	}

	items := make([]models.OrderItem, 0, len(lines))
	promoLines := make([]promotion.Line, 0, len(lines))
	for _, l := range lines {
		p := products[l.productID]
		if p == nil || !p.IsActive {
			return nil, nil, apperr.Validation("product %s is no longer available", l.productID)
		}
		var v *models.ProductVariant
		if l.variantID != "" {
			v = variants[l.variantID]
			if v == nil || !v.IsActive || v.ProductID != p.ID {
				return nil, nil, apperr.Validation("variant %s of %s is no longer available", l.variantID, p.Name)
			}
		}
		if available, tracked := p.Available(v); tracked && available < demand[l.stockKey()] {
			return nil, nil, apperr.Stock("insufficient stock for %s: %d available, %d requested",
				p.Name, available, demand[l.stockKey()])
		}

		price := p.EffectivePrice(v)
		if l.price != nil {
			price = *l.price
		}
		price = promotion.Round(price)

		item := models.OrderItem{
			ID:          uuid.NewString(),
			ProductID:   p.ID,
			VariantID:   l.variantID,
			ProductName: p.Name,
			ProductSKU:  p.SKU,
			Quantity:    l.quantity,
			Price:       price,
			Total:       promotion.Round(price.Mul(decimal.NewFromInt(int64(l.quantity)))),
		}
		if v != nil {
			item.ProductSKU = v.SKU
			item.VariantDetails = datatypes.NewJSONType(v.Attributes.Data())
		}
		items = append(items, item)

		promoLines = append(promoLines, promotion.Line{
			ProductID:  p.ID,
			VariantID:  l.variantID,
			CategoryID: p.CategoryID,
			UnitPrice:  price,
			Quantity:   l.quantity,
		})
	}

	result, err := s.evaluate(ctx, tx, tx, promoLines, in.CouponCode)
	if err != nil {
		return nil, nil, err
	}
	if result.Coupon != nil && !result.CouponRedeemed() {
		reason := result.CouponReason
		if reason == "" {
			reason = "it gives no discount on this order"
		}
		return nil, nil, apperr.Validation("coupon %s was not applied: %s", result.Coupon.Code, reason)
	}
	totals := s.rates.Compute(result.Subtotal, result.Discount, result.FreeShipping)

	billing := in.ShippingAddress
	if in.BillingAddress != nil {
		billing = *in.BillingAddress
	}
	order := &models.Order{
		ID:                uuid.NewString(),
		OrderNumber:       newOrderNumber(s.now().UnixMilli()),
		UserID:            userID,
		Status:            models.OrderPending,
		PaymentStatus:     models.PaymentPending,
		PaymentMethod:     in.PaymentMethod,
		Subtotal:          totals.Subtotal,
		Tax:               totals.Tax,
		ShippingCost:      totals.Shipping,
		Discount:          totals.Discount,
		Total:             totals.Total,
		AppliedPromotions: datatypes.NewJSONType(result.Applied),
		ShippingAddress:   datatypes.NewJSONType(in.ShippingAddress),
		BillingAddress:    datatypes.NewJSONType(billing),
		Notes:             in.Notes,
		Items:             items,
	}
	if result.CouponRedeemed() {
		code := result.Coupon.Code
		order.CouponCode = &code
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, nil, err
	}

	if err := decrementStock(ctx, tx, lines, products); err != nil {
		return nil, nil, err
	}

	if result.CouponRedeemed() {
		if err := tx.IncrementCouponUsage(ctx, result.Coupon.ID); err != nil {
			return nil, nil, err
		}
	}
	for _, id := range result.RedeemedBundles() {
		if err := tx.IncrementBundleRedemption(ctx, id); err != nil {
			return nil, nil, err
		}
	}

	if cart != nil {
		if err := tx.ConvertCart(ctx, cart.ID); err != nil {
			return nil, nil, err
		}
	}
	return order, result, nil
}

// withoutBundles hides bundles from the evaluator.
type withoutBundles struct {
	promotion.Source
	skip map[string]bool
}

func (w *withoutBundles) ActiveBundles(ctx context.Context, now time.Time) ([]*promotion.Bundle, error) {
	all, err := w.Source.ActiveBundles(ctx, now)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if !w.skip[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

// evaluate prices the lines and locks the rows of the bundles it redeems. A
// bundle that a concurrent checkout used up since it was loaded is dropped
// and the lines are priced again without it.
func (s *Service) evaluate(ctx context.Context, tx *repository.Store, source promotion.Source, lines []promotion.Line, couponCode string) (*promotion.Result, error) {
	src := &withoutBundles{Source: source, skip: map[string]bool{}}
	for {
		result, err := s.evaluator.Evaluate(ctx, src, lines, couponCode)
		if err != nil {
			return nil, err
		}
		ids := result.RedeemedBundles()
		if len(ids) == 0 {
			return result, nil
		}
		spent, err := tx.LockSpentBundles(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(spent) == 0 {
			return result, nil
		}
		for _, id := range spent {
			s.logger.Info("Bundle used up during checkout, pricing without it", zap.String("bundle_id", id))
			src.skip[id] = true
		}
	}
}

// decrementStock walks stock rows in key order so concurrent checkouts
// update them in the same sequence.
func decrementStock(ctx context.Context, tx *repository.Store, lines []orderLine, products map[string]*models.Product) error {
	sorted := append([]orderLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].stockKey() < sorted[j].stockKey() })

	for _, l := range sorted {
		if !products[l.productID].TrackInventory {
			continue
		}
		var err error
		if l.variantID != "" {
			err = tx.DecrementVariantStock(ctx, l.variantID, l.quantity)
		} else {
			err = tx.DecrementStock(ctx, l.productID, l.quantity)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
