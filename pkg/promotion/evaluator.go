package promotion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TypeDiscount = "discount"
	TypeBundle   = "bundle"
	TypeCoupon   = "coupon"
)

// Source supplies candidate promotions. Implementations bound to a
// transaction give the evaluator a consistent view of usage counters.
type Source interface {
	ActiveDiscounts(ctx context.Context, now time.Time) ([]*Discount, error)
	ActiveBundles(ctx context.Context, now time.Time) ([]*Bundle, error)
	// CouponByCode returns an apperr NotFound error for unknown codes.
	CouponByCode(ctx context.Context, code string) (*Coupon, error)
}

// Applied is one line of the discount breakdown.
type Applied struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Code   string          `json:"code,omitempty"`
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

type Result struct {
	Subtotal decimal.Decimal
	// Applied lists discounts and bundles in evaluation order, then the coupon.
	Applied      []Applied
	Coupon       *Coupon
	CouponAmount decimal.Decimal
	CouponReason string
	FreeShipping bool
	// Discount is the total, never more than Subtotal.
	Discount decimal.Decimal
}

// CouponRedeemed reports whether the coupon contributed to the result and
// its usage count must be incremented.
func (r *Result) CouponRedeemed() bool {
	if r.Coupon == nil {
		return false
	}
	return r.CouponAmount.IsPositive() || r.FreeShipping
}

// RedeemedBundles lists bundles whose redemption counters must be incremented.
func (r *Result) RedeemedBundles() []string {
	var ids []string
	for _, a := range r.Applied {
		if a.Type == TypeBundle {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

type Evaluator struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.Named("promotion"),
		now:    time.Now,
	}
}

// WithClock returns a copy of the evaluator reading time from now.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	c := *e
	c.now = now
	return &c
}

// Evaluate loads candidates from src and prices lines. A supplied coupon
// code that is unknown or not currently valid fails the whole evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, src Source, lines []Line, couponCode string) (*Result, error) {
	now := e.now()

	discounts, err := src.ActiveDiscounts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load discounts: %w", err)
	}
	bundles, err := src.ActiveBundles(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundles: %w", err)
	}

	var coupon *Coupon
	if code := NormalizeCode(couponCode); code != "" {
		coupon, err = src.CouponByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if ok, reason := coupon.IsValid(now); !ok {
			return nil, apperr.Validation("validation failed: %s", reason)
		}
	}

	res, err := Apply(now, lines, discounts, bundles, coupon)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Promotions evaluated",
		zap.String("subtotal", res.Subtotal.StringFixed(2)),
		zap.String("discount", res.Discount.StringFixed(2)),
		zap.Int("applied", len(res.Applied)),
		zap.Bool("free_shipping", res.FreeShipping))

	return res, nil
}

type candidate struct {
	applied     Applied
	priority    int
	createdAt   time.Time
	stackable   bool
	withCoupons bool
}

func byPrecedence(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.applied.ID < b.applied.ID
	})
}

// Apply resolves stacking between already loaded promotions. Candidates that
// are not valid at now, and bundles that are not auto-applied, are ignored.
// The coupon, when present, must already have passed IsValid.
func Apply(now time.Time, lines []Line, discounts []*Discount, bundles []*Bundle, coupon *Coupon) (*Result, error) {
	res := &Result{
		Subtotal:     Subtotal(lines),
		Coupon:       coupon,
		CouponAmount: decimal.Zero,
		Discount:     decimal.Zero,
	}

	var cands []candidate
	for _, d := range discounts {
		if !d.IsValid(now) {
			continue
		}
		kind := ""
		if d.Benefit != nil {
			kind = d.Benefit.Kind()
		}
		cands = append(cands, candidate{
			applied:     Applied{Type: TypeDiscount, ID: d.ID, Name: d.Name, Kind: kind, Amount: d.Amount(lines)},
			priority:    d.Priority,
			createdAt:   d.CreatedAt,
			stackable:   d.Stackable,
			withCoupons: d.StackableWithCoupons,
		})
	}
	for _, b := range bundles {
		if ok, _ := b.IsValid(now); !ok || !b.AutoApply {
			continue
		}
		kind := ""
		if b.Rule != nil {
			kind = b.Rule.Kind()
		}
		cands = append(cands, candidate{
			applied:     Applied{Type: TypeBundle, ID: b.ID, Name: b.Name, Kind: kind, Amount: b.CalculateBundleDiscount(lines)},
			priority:    b.Priority,
			createdAt:   b.CreatedAt,
			stackable:   b.Stackable,
			withCoupons: b.StackableWithCoupons,
		})
	}
	byPrecedence(cands)

	exclusivePicked := false
	var selected []candidate
	for _, c := range cands {
		if !c.applied.Amount.IsPositive() {
			continue
		}
		if !c.stackable {
			if exclusivePicked {
				continue
			}
			exclusivePicked = true
		}
		selected = append(selected, c)
	}

	total := decimal.Zero
	for _, c := range selected {
		res.Applied = append(res.Applied, c.applied)
		total = total.Add(c.applied.Amount)
	}

	if coupon != nil {
		for _, c := range selected {
			if !c.withCoupons {
				return nil, apperr.Validation("coupon %s cannot be combined with %s %q", coupon.Code, c.applied.Type, c.applied.Name)
			}
		}

		var amount decimal.Decimal
		var reason string
		if !coupon.IsApplicableToCart(lines) {
			amount, reason = decimal.Zero, "coupon does not apply to any item in the cart"
		} else {
			amount, reason = coupon.discountFor(res.Subtotal, coupon.ApplicableBase(lines))
		}
		res.CouponAmount = amount
		res.CouponReason = reason
		res.FreeShipping = reason == "" && coupon.GrantsFreeShipping()

		if res.CouponRedeemed() {
			kind := ""
			if coupon.Benefit != nil {
				kind = coupon.Benefit.Kind()
			}
			res.Applied = append(res.Applied, Applied{
				Type: TypeCoupon, ID: coupon.ID, Name: coupon.Name, Code: coupon.Code, Kind: kind, Amount: amount,
			})
			total = total.Add(amount)
		}
	}

	res.Discount = clamp(Round(total), res.Subtotal)
	res.trimApplied()
	return res, nil
}

// trimApplied lowers the breakdown until it sums to Discount, taking from the
// coupon first and then from the lowest precedence entries. Entries left at
// zero are dropped unless they still grant free shipping.
func (r *Result) trimApplied() {
	sum := decimal.Zero
	for _, a := range r.Applied {
		sum = sum.Add(a.Amount)
	}
	excess := sum.Sub(r.Discount)
	for i := len(r.Applied) - 1; i >= 0 && excess.IsPositive(); i-- {
		cut := decimal.Min(excess, r.Applied[i].Amount)
		r.Applied[i].Amount = r.Applied[i].Amount.Sub(cut)
		excess = excess.Sub(cut)
	}

	kept := r.Applied[:0]
	for _, a := range r.Applied {
		if a.Type == TypeCoupon {
			r.CouponAmount = a.Amount
			if !a.Amount.IsPositive() && !r.FreeShipping {
				r.CouponReason = "other promotions already cover the subtotal"
				continue
			}
		}
		if a.Amount.IsPositive() || a.Type == TypeCoupon {
			kept = append(kept, a)
		}
	}
	r.Applied = kept
}
