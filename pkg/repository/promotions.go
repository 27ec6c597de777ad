package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"gorm.io/gorm"
)

// Store implements promotion.Source; inside a checkout transaction the
// evaluator sees the same counters the guarded increments will touch.
var _ promotion.Source = (*Store)(nil)

// ActiveDiscountRows returns active discounts whose window contains now,
// highest priority first. Windows are checked in Go so that time
// comparison does not depend on the SQL dialect.
func (s *Store) ActiveDiscountRows(ctx context.Context, now time.Time) ([]models.Discount, error) {
	var rows []models.Discount
	err := s.db.WithContext(ctx).Where("is_active = ?", true).
		Order("priority DESC, created_at, id").Find(&rows).Error
	if err != nil {
		return nil, apperr.FromDB(err, "discount")
	}
	out := rows[:0]
	for _, r := range rows {
		if (promotion.Window{From: r.ValidFrom, Until: r.ValidUntil}).Contains(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ActiveBundleRows(ctx context.Context, now time.Time) ([]models.Bundle, error) {
	var rows []models.Bundle
	err := s.db.WithContext(ctx).Where("is_active = ?", true).
		Order("priority DESC, created_at, id").Find(&rows).Error
	if err != nil {
		return nil, apperr.FromDB(err, "bundle")
	}
	out := rows[:0]
	for _, r := range rows {
		if (promotion.Window{From: r.ValidFrom, Until: r.ValidUntil}).Contains(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ActiveDiscounts(ctx context.Context, now time.Time) ([]*promotion.Discount, error) {
	rows, err := s.ActiveDiscountRows(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]*promotion.Discount, 0, len(rows))
	for i := range rows {
		d, err := rows[i].Promotion()
		if err != nil {
			return nil, apperr.Internal(err, "invalid discount configuration")
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) ActiveBundles(ctx context.Context, now time.Time) ([]*promotion.Bundle, error) {
	rows, err := s.ActiveBundleRows(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]*promotion.Bundle, 0, len(rows))
	for i := range rows {
		b, err := rows[i].Promotion()
		if err != nil {
			return nil, apperr.Internal(err, "invalid bundle configuration")
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) CouponRow(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.WithContext(ctx).Where("code = ?", promotion.NormalizeCode(code)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invalid coupon code")
	}
	if err != nil {
		return nil, apperr.FromDB(err, "coupon")
	}
	return &c, nil
}

func (s *Store) CouponByCode(ctx context.Context, code string) (*promotion.Coupon, error) {
	row, err := s.CouponRow(ctx, code)
	if err != nil {
		return nil, err
	}
	c, err := row.Promotion()
	if err != nil {
		return nil, apperr.Internal(err, "invalid coupon configuration")
	}
	return c, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	c.Code = promotion.NormalizeCode(c.Code)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("code = ?", c.Code).Count(&n).Error; err != nil {
		return apperr.FromDB(err, "coupon")
	}
	if n > 0 {
		return apperr.Conflict("coupon code %s already exists", c.Code)
	}
	return apperr.FromDB(s.db.WithContext(ctx).Create(c).Error, "coupon")
}

func (s *Store) CreateDiscount(ctx context.Context, d *models.Discount) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(d).Error, "discount")
}

func (s *Store) CreateBundle(ctx context.Context, b *models.Bundle) error {
	return apperr.FromDB(s.db.WithContext(ctx).Create(b).Error, "bundle")
}

// IncrementCouponUsage redeems the coupon once, refusing to pass its usage
// limit.
func (s *Store) IncrementCouponUsage(ctx context.Context, couponID string) error {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE coupons SET usage_count = usage_count + 1, updated_at = ? "+
			"WHERE id = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)",
		time.Now(), couponID, true)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "coupon")
	}
	if res.RowsAffected == 0 {
		return apperr.Validation("coupon usage limit reached")
	}
	return nil
}

// IncrementBundleRedemption redeems the bundle once, refusing to pass
// max_redemptions.
func (s *Store) IncrementBundleRedemption(ctx context.Context, bundleID string) error {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE bundles SET current_redemptions = current_redemptions + 1, updated_at = ? "+
			"WHERE id = ? AND (max_redemptions IS NULL OR current_redemptions < max_redemptions)",
		time.Now(), bundleID)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "bundle")
	}
	if res.RowsAffected == 0 {
		return apperr.Validation("bundle %s redemption limit reached", bundleID)
	}
	return nil
}

// LockSpentBundles locks the given bundle rows until the transaction ends
// and returns the ids whose max_redemptions is already reached.
func (s *Store) LockSpentBundles(ctx context.Context, ids []string) ([]string, error) {
	var rows []models.Bundle
	err := s.forUpdate(s.db.WithContext(ctx)).
		Select("id", "max_redemptions", "current_redemptions").
		Where("id IN ?", sortedUnique(ids)).Order("id").Find(&rows).Error
	if err != nil {
		return nil, apperr.FromDB(err, "bundle")
	}
	var spent []string
	for _, b := range rows {
		if b.MaxRedemptions != nil && b.CurrentRedemptions >= *b.MaxRedemptions {
			spent = append(spent, b.ID)
		}
	}
	return spent, nil
}
