package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountTarget string

const (
	DiscountAll            DiscountTarget = "all"
	DiscountCategory       DiscountTarget = "category"
	DiscountProduct        DiscountTarget = "product"
	DiscountProductVariant DiscountTarget = "product_variant"
)

// Discount is a code-free catalog campaign applied automatically.
type Discount struct {
	ID                   string
	Name                 string
	Benefit              DiscountBenefit
	AppliesTo            DiscountTarget
	TargetIDs            IDSet
	ExcludedIDs          IDSet
	MinQuantity          int
	Priority             int
	Stackable            bool
	StackableWithCoupons bool
	Window               Window
	Active               bool
	CreatedAt            time.Time
}

func (d *Discount) IsValid(now time.Time) bool {
	return d.Active && d.Window.Contains(now)
}

// IsApplicableTo tests a single catalog id of the given type.
func (d *Discount) IsApplicableTo(itemID string, itemType DiscountTarget) bool {
	if d.ExcludedIDs.Has(itemID) {
		return false
	}
	if d.AppliesTo == DiscountAll {
		return true
	}
	return d.AppliesTo == itemType && d.TargetIDs.Has(itemID)
}

func (d *Discount) AppliesToLine(l Line) bool {
	if d.ExcludedIDs.Has(l.ProductID) || d.ExcludedIDs.Has(l.VariantID) || d.ExcludedIDs.Has(l.CategoryID) {
		return false
	}
	switch d.AppliesTo {
	case DiscountAll:
		return true
	case DiscountCategory:
		return d.TargetIDs.Has(l.CategoryID)
	case DiscountProduct:
		return d.TargetIDs.Has(l.ProductID)
	case DiscountProductVariant:
		return d.TargetIDs.Has(l.VariantID)
	}
	return false
}

// CalculateDiscount prices the discount for base spread over quantity units.
func (d *Discount) CalculateDiscount(base decimal.Decimal, quantity int) decimal.Decimal {
	if quantity < d.MinQuantity || d.Benefit == nil {
		return decimal.Zero
	}
	return d.Benefit.Apply(base)
}

// Amount is the discount over the lines it targets.
func (d *Discount) Amount(lines []Line) decimal.Decimal {
	var matching []Line
	for _, l := range lines {
		if d.AppliesToLine(l) {
			matching = append(matching, l)
		}
	}
	if len(matching) == 0 {
		return decimal.Zero
	}
	return d.CalculateDiscount(Subtotal(matching), totalQuantity(matching))
}
