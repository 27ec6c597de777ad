package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindBuyXGetY         = "buy_x_get_y"
	KindBundlePrice      = "bundle_price"
	KindBundlePercentage = "bundle_percentage"
)

// BundleRule computes a bundle's discount over its matching lines.
type BundleRule interface {
	Kind() string
	discount(matching []Line) decimal.Decimal
}

// BuyXGetY gives FreeQuantity of the cheapest matching unit for every
// RequiredQuantity matching units. FreeProductID is informational.
type BuyXGetY struct {
	RequiredQuantity int
	FreeQuantity     int
	FreeProductID    string
}

func (BuyXGetY) Kind() string { return KindBuyXGetY }

func (r BuyXGetY) discount(matching []Line) decimal.Decimal {
	if r.RequiredQuantity <= 0 || r.FreeQuantity <= 0 || len(matching) == 0 {
		return decimal.Zero
	}
	times := totalQuantity(matching) / r.RequiredQuantity
	if times == 0 {
		return decimal.Zero
	}
	cheapest := matching[0].UnitPrice
	for _, l := range matching[1:] {
		if l.UnitPrice.LessThan(cheapest) {
			cheapest = l.UnitPrice
		}
	}
	return Round(cheapest.Mul(decimal.NewFromInt(int64(r.FreeQuantity * times))))
}

// FixedPrice sells the matching set for Price.
type FixedPrice struct {
	Price decimal.Decimal
}

func (FixedPrice) Kind() string { return KindBundlePrice }

func (r FixedPrice) discount(matching []Line) decimal.Decimal {
	d := Subtotal(matching).Sub(r.Price)
	if d.IsNegative() {
		return decimal.Zero
	}
	return Round(d)
}

// BundlePercentage takes Percent off the matching set.
type BundlePercentage struct {
	Percent decimal.Decimal
}

func (BundlePercentage) Kind() string { return KindBundlePercentage }

func (r BundlePercentage) discount(matching []Line) decimal.Decimal {
	return Round(Subtotal(matching).Mul(r.Percent).Div(hundred))
}

// Bundle is a multi-item promotion over a product set.
type Bundle struct {
	ID               string
	Name             string
	Rule             BundleRule
	ProductIDs       []string
	MinItemsRequired int
	MaxRedemptions   *int
	// MaxRedemptionsPerUser is stored and reported but not enforced.
	MaxRedemptionsPerUser *int
	CurrentRedemptions    int
	AutoApply             bool
	RequiresAllProducts   bool
	Priority              int
	Stackable             bool
	StackableWithCoupons  bool
	Window                Window
	Active                bool
	CreatedAt             time.Time
}

func (b *Bundle) IsValid(now time.Time) (bool, string) {
	switch {
	case !b.Active:
		return false, "bundle is not active"
	case !b.Window.Contains(now):
		return false, "bundle is outside its validity window"
	case b.MaxRedemptions != nil && b.CurrentRedemptions >= *b.MaxRedemptions:
		return false, "bundle redemption limit reached"
	}
	return true, ""
}

func (b *Bundle) IsApplicableTo(productID string) bool {
	return NewIDSet(b.ProductIDs...).Has(productID)
}

// IsApplicableToCart applies all-of or any-of membership over the bundle's
// product set depending on RequiresAllProducts.
func (b *Bundle) IsApplicableToCart(lines []Line) bool {
	if len(b.ProductIDs) == 0 {
		return false
	}
	inCart := make(IDSet, len(lines))
	for _, l := range lines {
		inCart[l.ProductID] = struct{}{}
	}
	if b.RequiresAllProducts {
		for _, id := range b.ProductIDs {
			if !inCart.Has(id) {
				return false
			}
		}
		return true
	}
	for _, id := range b.ProductIDs {
		if inCart.Has(id) {
			return true
		}
	}
	return false
}

func (b *Bundle) matching(lines []Line) []Line {
	set := NewIDSet(b.ProductIDs...)
	var out []Line
	for _, l := range lines {
		if set.Has(l.ProductID) {
			out = append(out, l)
		}
	}
	return out
}

// CalculateBundleDiscount prices the bundle against the cart. The result is
// never more than the matching lines are worth.
func (b *Bundle) CalculateBundleDiscount(lines []Line) decimal.Decimal {
	if b.Rule == nil || !b.IsApplicableToCart(lines) {
		return decimal.Zero
	}
	matching := b.matching(lines)
	if totalQuantity(matching) < b.MinItemsRequired {
		return decimal.Zero
	}
	return clamp(b.Rule.discount(matching), Subtotal(matching))
}
