package pricing

import (
	"testing"

	"github.com/example/storefront/pkg/config"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute(t *testing.T) {
	tests := []struct {
		name                 string
		subtotal, discount   string
		freeShipping         bool
		tax, shipping, total string
	}{
		{"coupon and discount scenario", "40", "14", false, "8", "5.99", "39.99"},
		{"threshold is exclusive", "50", "0", false, "10", "5.99", "65.99"},
		{"above threshold ships free", "50.01", "0", false, "10", "0", "60.01"},
		{"free shipping granted", "10", "0", true, "2", "0", "12"},
		{"small subtotal", "0.05", "0", true, "0.01", "0", "0.06"},
		{"discount larger than everything floors at zero", "10", "100", true, "2", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultRates.Compute(d(tt.subtotal), d(tt.discount), tt.freeShipping)
			if !got.Tax.Equal(d(tt.tax)) {
				t.Errorf("tax = %s, want %s", got.Tax, tt.tax)
			}
			if !got.Shipping.Equal(d(tt.shipping)) {
				t.Errorf("shipping = %s, want %s", got.Shipping, tt.shipping)
			}
			if !got.Total.Equal(d(tt.total)) {
				t.Errorf("total = %s, want %s", got.Total, tt.total)
			}
		})
	}
}

func TestComputeIdentity(t *testing.T) {
	for _, sub := range []string{"0.01", "9.99", "33.33", "49.99", "120.5"} {
		for _, disc := range []string{"0", "1.11", "5"} {
			got := DefaultRates.Compute(d(sub), d(disc), false)
			want := got.Subtotal.Add(got.Tax).Add(got.Shipping).Sub(got.Discount).Round(2)
			if !got.Total.Equal(want) {
				t.Errorf("subtotal %s discount %s: total %s != %s", sub, disc, got.Total, want)
			}
		}
	}
}

func TestRatesFromConfig(t *testing.T) {
	r := RatesFromConfig(config.PricingConfig{TaxRate: 0.1})
	if !r.TaxRate.Equal(d("0.1")) {
		t.Errorf("tax rate = %s", r.TaxRate)
	}
	if !r.ShippingFee.Equal(d("5.99")) {
		t.Errorf("shipping fee default = %s", r.ShippingFee)
	}
}
