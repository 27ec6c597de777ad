package checkout

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CouponSummary struct {
	ID    string          `json:"id"`
	Code  string          `json:"code"`
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// CouponCheck is the outcome of validating a coupon against a subtotal. A
// valid coupon whose minimum purchase is not met yields a zero discount
// and a reason.
type CouponCheck struct {
	Coupon   CouponSummary   `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
}

// ValidateCoupon prices a coupon against subtotal without redeeming it.
func (s *Service) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*CouponCheck, error) {
	code = promotion.NormalizeCode(code)
	if code == "" {
		return nil, apperr.Invalid("invalid coupon", apperr.FieldError{Field: "code", Message: "is required"})
	}
	if subtotal.IsNegative() {
		return nil, apperr.Invalid("invalid subtotal", apperr.FieldError{Field: "subtotal", Message: "must not be negative"})
	}

	row, err := s.couponRow(ctx, code)
	if err != nil {
		return nil, err
	}
	c, err := row.Promotion()
	if err != nil {
		return nil, apperr.Internal(err, "invalid coupon configuration")
	}
	if ok, reason := c.IsValid(s.now()); !ok {
		return nil, apperr.Validation("validation failed: %s", reason)
	}

	amount, reason := c.CalculateDiscount(subtotal)
	return &CouponCheck{
		Coupon: CouponSummary{
			ID:    row.ID,
			Code:  row.Code,
			Type:  row.Type,
			Value: row.Value,
		},
		Discount: amount,
		Reason:   reason,
	}, nil
}

// couponRow reads through the coupon cache. Redemptions invalidate the
// entry so usage limits are seen promptly.
func (s *Service) couponRow(ctx context.Context, code string) (*models.Coupon, error) {
	if s.cache != nil {
		c, err := s.cache.GetCachedCoupon(ctx, code)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("Coupon cache read failed", zap.String("coupon_code", code), zap.Error(err))
		}
	}

	c, err := s.store.CouponRow(ctx, code)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.CacheCoupon(ctx, c, s.opts.CouponTTL); err != nil {
			s.logger.Warn("Failed to cache coupon", zap.String("coupon_code", code), zap.Error(err))
		}
	}
	return c, nil
}

func (s *Service) CreateCoupon(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	c.ID = uuid.NewString()
	c.Code = promotion.NormalizeCode(c.Code)
	c.UsageCount = 0
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	s.invalidateCoupon(ctx, c.Code)
	s.logger.Info("Coupon created", zap.String("coupon_id", c.ID), zap.String("coupon_code", c.Code))
	return c, nil
}

func (s *Service) CreateDiscount(ctx context.Context, d *models.Discount) (*models.Discount, error) {
	d.ID = uuid.NewString()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateDiscount(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("Discount created", zap.String("discount_id", d.ID), zap.String("name", d.Name))
	return d, nil
}

func (s *Service) CreateBundle(ctx context.Context, b *models.Bundle) (*models.Bundle, error) {
	b.ID = uuid.NewString()
	b.CurrentRedemptions = 0
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateBundle(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("Bundle created", zap.String("bundle_id", b.ID), zap.String("name", b.Name))
	return b, nil
}

type ActivePromotions struct {
	Discounts []models.Discount `json:"discounts"`
	Bundles   []models.Bundle   `json:"bundles"`
}

// ActivePromotions lists discounts and automatic bundles currently in
// effect.
func (s *Service) ActivePromotions(ctx context.Context) (*ActivePromotions, error) {
	now := s.now()
	discounts, err := s.store.ActiveDiscountRows(ctx, now)
	if err != nil {
		return nil, err
	}
	bundles, err := s.store.ActiveBundleRows(ctx, now)
	if err != nil {
		return nil, err
	}

	out := &ActivePromotions{Discounts: discounts, Bundles: []models.Bundle{}}
	if out.Discounts == nil {
		out.Discounts = []models.Discount{}
	}
	for _, b := range bundles {
		if b.AutoApply {
			out.Bundles = append(out.Bundles, b)
		}
	}
	return out, nil
}
