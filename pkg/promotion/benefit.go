package promotion

import "github.com/shopspring/decimal"

// Benefit turns a base amount into a discount amount in [0, base].
type Benefit interface {
	Kind() string
	Apply(base decimal.Decimal) decimal.Decimal
}

// CouponBenefit is implemented by PercentageOff, AmountOff and FreeShipping.
type CouponBenefit interface {
	Benefit
	couponBenefit()
}

// DiscountBenefit is implemented by PercentageOff and AmountOff.
type DiscountBenefit interface {
	Benefit
	discountBenefit()
}

const (
	KindPercentage   = "percentage"
	KindFixedAmount  = "fixed_amount"
	KindFreeShipping = "free_shipping"
)

// PercentageOff takes Percent of the base, capped at Max when set.
type PercentageOff struct {
	Percent decimal.Decimal
	Max     decimal.NullDecimal
}

func (PercentageOff) Kind() string { return KindPercentage }

func (p PercentageOff) Apply(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	d := Round(base.Mul(p.Percent).Div(hundred))
	if p.Max.Valid && d.GreaterThan(p.Max.Decimal) {
		d = Round(p.Max.Decimal)
	}
	return clamp(d, base)
}

func (PercentageOff) couponBenefit()   {}
func (PercentageOff) discountBenefit() {}

// AmountOff takes a flat amount, never more than the base.
type AmountOff struct {
	Amount decimal.Decimal
}

func (AmountOff) Kind() string { return KindFixedAmount }

func (a AmountOff) Apply(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return clamp(Round(a.Amount), base)
}

func (AmountOff) couponBenefit()   {}
func (AmountOff) discountBenefit() {}

// FreeShipping waives shipping; it never reduces the merchandise total.
type FreeShipping struct{}

func (FreeShipping) Kind() string { return KindFreeShipping }

func (FreeShipping) Apply(decimal.Decimal) decimal.Decimal { return decimal.Zero }

func (FreeShipping) couponBenefit() {}
