package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponTarget string

const (
	CouponAllItems           CouponTarget = "all"
	CouponSpecificProducts   CouponTarget = "specific_products"
	CouponSpecificCategories CouponTarget = "specific_categories"
)

// Coupon is a user-entered, code-based promotion.
type Coupon struct {
	ID          string
	Code        string
	Name        string
	Benefit     CouponBenefit
	MinPurchase decimal.Decimal
	UsageLimit  *int
	// UsageLimitPerUser is stored and reported but not enforced.
	UsageLimitPerUser  *int
	UsageCount         int
	AppliesTo          CouponTarget
	ProductIDs         IDSet
	CategoryIDs        IDSet
	ExcludedProductIDs IDSet
	Window             Window
	Active             bool
	CreatedAt          time.Time
}

// IsValid reports whether the coupon can be redeemed at now, with a reason
// when it cannot.
func (c *Coupon) IsValid(now time.Time) (bool, string) {
	switch {
	case !c.Active:
		return false, "coupon is not active"
	case c.Window.From != nil && now.Before(*c.Window.From):
		return false, "coupon is not yet valid"
	case c.Window.Until != nil && now.After(*c.Window.Until):
		return false, "coupon has expired"
	case c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit:
		return false, "coupon usage limit reached"
	}
	return true, ""
}

func (c *Coupon) IsApplicableTo(l Line) bool {
	if c.ExcludedProductIDs.Has(l.ProductID) {
		return false
	}
	switch c.AppliesTo {
	case CouponSpecificProducts:
		return c.ProductIDs.Has(l.ProductID)
	case CouponSpecificCategories:
		return c.CategoryIDs.Has(l.CategoryID)
	default:
		return true
	}
}

func (c *Coupon) IsApplicableToCart(lines []Line) bool {
	for _, l := range lines {
		if c.IsApplicableTo(l) {
			return true
		}
	}
	return false
}

// ApplicableBase is the sum of line totals the coupon may discount.
func (c *Coupon) ApplicableBase(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if c.IsApplicableTo(l) {
			sum = sum.Add(l.Total())
		}
	}
	return Round(sum)
}

// CalculateDiscount prices the coupon against a plain subtotal, as the
// standalone validation endpoint does.
func (c *Coupon) CalculateDiscount(subtotal decimal.Decimal) (decimal.Decimal, string) {
	return c.discountFor(subtotal, subtotal)
}

// discountFor checks the minimum purchase against the cart subtotal and
// applies the benefit to base.
func (c *Coupon) discountFor(subtotal, base decimal.Decimal) (decimal.Decimal, string) {
	if subtotal.LessThan(c.MinPurchase) {
		return decimal.Zero, "minimum purchase amount of " + Round(c.MinPurchase).StringFixed(2) + " not met"
	}
	if c.Benefit == nil {
		return decimal.Zero, "coupon has no benefit"
	}
	return c.Benefit.Apply(base), ""
}

func (c *Coupon) GrantsFreeShipping() bool {
	_, ok := c.Benefit.(FreeShipping)
	return ok
}
