package pricing

import (
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/promotion"
	"github.com/shopspring/decimal"
)

// Rates holds the flat business constants used to price an order.
type Rates struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultRates is 20% tax, free shipping above 50, otherwise 5.99.
var DefaultRates = Rates{
	TaxRate:               decimal.RequireFromString("0.20"),
	FreeShippingThreshold: decimal.NewFromInt(50),
	ShippingFee:           decimal.RequireFromString("5.99"),
}

func RatesFromConfig(cfg config.PricingConfig) Rates {
	r := DefaultRates
	if cfg.TaxRate > 0 {
		r.TaxRate = decimal.NewFromFloat(cfg.TaxRate)
	}
	if cfg.FreeShippingThreshold > 0 {
		r.FreeShippingThreshold = decimal.NewFromFloat(cfg.FreeShippingThreshold)
	}
	if cfg.ShippingFee > 0 {
		r.ShippingFee = decimal.NewFromFloat(cfg.ShippingFee)
	}
	return r
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping_cost"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Compute prices an order. Tax is charged on the pre-discount subtotal and
// the total never goes below zero.
func (r Rates) Compute(subtotal, discount decimal.Decimal, freeShipping bool) Totals {
	subtotal = promotion.Round(subtotal)
	discount = promotion.Round(discount)

	tax := promotion.Round(subtotal.Mul(r.TaxRate))

	shipping := promotion.Round(r.ShippingFee)
	if freeShipping || subtotal.GreaterThan(r.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	total := promotion.Round(subtotal.Add(tax).Add(shipping).Sub(discount))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}
}
