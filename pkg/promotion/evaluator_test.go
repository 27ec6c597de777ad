package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	discounts []*Discount
	bundles   []*Bundle
	coupons   map[string]*Coupon
}

func (f *fakeSource) ActiveDiscounts(context.Context, time.Time) ([]*Discount, error) {
	return f.discounts, nil
}

func (f *fakeSource) ActiveBundles(context.Context, time.Time) ([]*Bundle, error) {
	return f.bundles, nil
}

func (f *fakeSource) CouponByCode(_ context.Context, code string) (*Coupon, error) {
	if c, ok := f.coupons[code]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("invalid coupon code")
}

func newTestEvaluator(t *testing.T) *Evaluator {
	return NewEvaluator(zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
}

func TestEvaluateStackableDiscountWithCoupon(t *testing.T) {
	src := &fakeSource{
		discounts: []*Discount{{
			ID: "d1", Name: "Spring sale", Benefit: PercentageOff{Percent: dec("10")},
			AppliesTo: DiscountAll, Stackable: true, StackableWithCoupons: true, Active: true,
		}},
		coupons: map[string]*Coupon{
			"FIXED10": {ID: "c1", Code: "FIXED10", Benefit: AmountOff{Amount: dec("10")}, AppliesTo: CouponAllItems, Active: true},
		},
	}
	lines := []Line{{ProductID: "p1", UnitPrice: dec("20"), Quantity: 2}}

	res, err := newTestEvaluator(t).Evaluate(context.Background(), src, lines, "fixed10")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertDec(t, "subtotal", res.Subtotal, "40")
	assertDec(t, "discount", res.Discount, "14")
	if !res.CouponRedeemed() {
		t.Error("coupon should be redeemed")
	}
	if len(res.Applied) != 2 || res.Applied[1].Type != TypeCoupon {
		t.Errorf("applied = %+v", res.Applied)
	}
}

func TestEvaluateInvalidCoupon(t *testing.T) {
	src := &fakeSource{coupons: map[string]*Coupon{
		"OLD": {ID: "c", Code: "OLD", Benefit: AmountOff{Amount: dec("5")}, Active: true, Window: Window{Until: timePtr(now.Add(-time.Hour))}},
	}}
	lines := []Line{{ProductID: "p", UnitPrice: dec("10"), Quantity: 1}}
	ev := newTestEvaluator(t)

	_, err := ev.Evaluate(context.Background(), src, lines, "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown code: err = %v, want not found", err)
	}

	_, err = ev.Evaluate(context.Background(), src, lines, "old")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expired code: err = %v, want validation", err)
	}
}

func TestApplyPicksSingleNonStackable(t *testing.T) {
	early := now.Add(-48 * time.Hour)
	late := now.Add(-24 * time.Hour)
	discounts := []*Discount{
		{ID: "low", Name: "low", Benefit: AmountOff{Amount: dec("1")}, AppliesTo: DiscountAll, Priority: 1, Active: true, CreatedAt: early},
		{ID: "tie-late", Name: "tie-late", Benefit: AmountOff{Amount: dec("3")}, AppliesTo: DiscountAll, Priority: 5, Active: true, CreatedAt: late},
		{ID: "tie-early", Name: "tie-early", Benefit: AmountOff{Amount: dec("2")}, AppliesTo: DiscountAll, Priority: 5, Active: true, CreatedAt: early},
		{ID: "stack", Name: "stack", Benefit: AmountOff{Amount: dec("0.5")}, AppliesTo: DiscountAll, Stackable: true, Active: true},
	}
	lines := []Line{{ProductID: "p", UnitPrice: dec("100"), Quantity: 1}}

	res, err := Apply(now, lines, discounts, nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Fatalf("applied = %+v", res.Applied)
	}
	if res.Applied[0].ID != "tie-early" {
		t.Errorf("non-stackable winner = %s, want tie-early", res.Applied[0].ID)
	}
	assertDec(t, "discount", res.Discount, "2.5")
}

func TestApplySkipsNonApplicableExclusive(t *testing.T) {
	discounts := []*Discount{
		{ID: "shoes", Name: "shoes", Benefit: PercentageOff{Percent: dec("50")}, AppliesTo: DiscountCategory, TargetIDs: NewIDSet("shoes"), Priority: 10, Active: true},
		{ID: "all", Name: "all", Benefit: PercentageOff{Percent: dec("10")}, AppliesTo: DiscountAll, Priority: 1, Active: true},
	}
	lines := []Line{{ProductID: "p", CategoryID: "hats", UnitPrice: dec("30"), Quantity: 1}}

	res, err := Apply(now, lines, discounts, nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0].ID != "all" {
		t.Errorf("applied = %+v, want only 'all'", res.Applied)
	}
	assertDec(t, "discount", res.Discount, "3")
}

func TestApplyCouponRejectedByExclusivePromotion(t *testing.T) {
	discounts := []*Discount{{
		ID: "d", Name: "Clearance", Benefit: PercentageOff{Percent: dec("30")}, AppliesTo: DiscountAll,
		StackableWithCoupons: false, Active: true,
	}}
	coupon := &Coupon{ID: "c", Code: "SAVE5", Benefit: AmountOff{Amount: dec("5")}, AppliesTo: CouponAllItems, Active: true}
	lines := []Line{{ProductID: "p", UnitPrice: dec("20"), Quantity: 1}}

	_, err := Apply(now, lines, discounts, nil, coupon)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestApplyCapsAtSubtotal(t *testing.T) {
	discounts := []*Discount{
		{ID: "a", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: DiscountAll, Stackable: true, StackableWithCoupons: true, Active: true},
		{ID: "b", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: DiscountAll, Stackable: true, StackableWithCoupons: true, Active: true},
	}
	coupon := &Coupon{ID: "c", Code: "C", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: CouponAllItems, Active: true}
	lines := []Line{{ProductID: "p", UnitPrice: dec("10"), Quantity: 1}}

	res, err := Apply(now, lines, discounts, nil, coupon)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertDec(t, "discount", res.Discount, "10")
}

func TestApplyBreakdownSumsToDiscount(t *testing.T) {
	discounts := []*Discount{
		{ID: "a", Name: "first", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: DiscountAll, Priority: 2, Stackable: true, StackableWithCoupons: true, Active: true},
		{ID: "b", Name: "second", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: DiscountAll, Priority: 1, Stackable: true, StackableWithCoupons: true, Active: true},
	}
	lines := []Line{{ProductID: "p", UnitPrice: dec("10"), Quantity: 1}}

	tests := []struct {
		name     string
		coupon   *Coupon
		want     []string
		redeemed bool
	}{
		{"discounts only", nil, []string{"a:8", "b:2"}, false},
		{"coupon absorbed", &Coupon{ID: "c", Code: "C", Benefit: AmountOff{Amount: dec("8")}, AppliesTo: CouponAllItems, Active: true},
			[]string{"a:8", "b:2"}, false},
		{"free shipping kept", &Coupon{ID: "f", Code: "SHIP", Benefit: FreeShipping{}, AppliesTo: CouponAllItems, Active: true},
			[]string{"a:8", "b:2", "f:0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Apply(now, lines, discounts, nil, tt.coupon)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			assertDec(t, "discount", res.Discount, "10")

			sum := dec("0")
			var got []string
			for _, a := range res.Applied {
				sum = sum.Add(a.Amount)
				got = append(got, a.ID+":"+a.Amount.String())
			}
			assertDec(t, "breakdown sum", sum, "10")
			if len(got) != len(tt.want) {
				t.Fatalf("applied = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("applied[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if res.CouponRedeemed() != tt.redeemed {
				t.Errorf("coupon redeemed = %v, want %v", res.CouponRedeemed(), tt.redeemed)
			}
			if tt.coupon != nil && !tt.redeemed && res.CouponReason == "" {
				t.Error("an unredeemed coupon needs a reason")
			}
		})
	}
}

func TestApplyBundlesAndRedemptionSignals(t *testing.T) {
	bundles := []*Bundle{
		{ID: "b3g1", Name: "3 for 2", Rule: BuyXGetY{RequiredQuantity: 3, FreeQuantity: 1}, ProductIDs: []string{"mug"},
			AutoApply: true, Stackable: true, StackableWithCoupons: true, Active: true},
		{ID: "manual", Name: "manual", Rule: BundlePercentage{Percent: dec("50")}, ProductIDs: []string{"mug"},
			AutoApply: false, Stackable: true, Active: true},
	}
	lines := []Line{
		{ProductID: "mug", UnitPrice: dec("5"), Quantity: 6},
		{ProductID: "mug", VariantID: "blue", UnitPrice: dec("3"), Quantity: 1},
	}

	res, err := Apply(now, lines, nil, bundles, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertDec(t, "discount", res.Discount, "6")
	ids := res.RedeemedBundles()
	if len(ids) != 1 || ids[0] != "b3g1" {
		t.Errorf("redeemed bundles = %v", ids)
	}
	if res.CouponRedeemed() {
		t.Error("no coupon supplied")
	}
}

func TestApplyFreeShippingCoupon(t *testing.T) {
	coupon := &Coupon{ID: "c", Code: "SHIPFREE", Benefit: FreeShipping{}, AppliesTo: CouponAllItems, MinPurchase: dec("20"), Active: true}

	res, err := Apply(now, []Line{{ProductID: "p", UnitPrice: dec("25"), Quantity: 1}}, nil, nil, coupon)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.FreeShipping || !res.CouponRedeemed() {
		t.Errorf("free shipping = %v, redeemed = %v", res.FreeShipping, res.CouponRedeemed())
	}
	assertDec(t, "discount", res.Discount, "0")

	res, err = Apply(now, []Line{{ProductID: "p", UnitPrice: dec("10"), Quantity: 1}}, nil, nil, coupon)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.FreeShipping || res.CouponRedeemed() || res.CouponReason == "" {
		t.Errorf("below minimum: free shipping = %v, reason = %q", res.FreeShipping, res.CouponReason)
	}
}

func TestApplyEmptyCart(t *testing.T) {
	discounts := []*Discount{{ID: "d", Benefit: AmountOff{Amount: dec("5")}, AppliesTo: DiscountAll, Active: true}}
	res, err := Apply(now, nil, discounts, nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertDec(t, "discount", res.Discount, "0")
	if len(res.Applied) != 0 {
		t.Errorf("applied = %+v", res.Applied)
	}
}
