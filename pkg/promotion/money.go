package promotion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds a money amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// clamp bounds d to [0, max].
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}

// Line is one priced cart or order line as seen by the evaluator.
type Line struct {
	ProductID  string
	VariantID  string
	CategoryID string
	UnitPrice  decimal.Decimal
	Quantity   int
}

func (l Line) Total() decimal.Decimal {
	return Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return Round(sum)
}

func totalQuantity(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// IDSet is an unordered set of entity ids.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

// Window is a validity interval; nil bounds are open.
type Window struct {
	From  *time.Time
	Until *time.Time
}

func (w Window) Contains(now time.Time) bool {
	if w.From != nil && now.Before(*w.From) {
		return false
	}
	if w.Until != nil && now.After(*w.Until) {
		return false
	}
	return true
}

// NormalizeCode canonicalizes a coupon code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
