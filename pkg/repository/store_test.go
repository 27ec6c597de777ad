package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestDecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	p := repotest.Product(t, store, "Mug", "9.50", 2)

	if err := store.DecrementStock(ctx, p.ID, 2); err != nil {
		t.Fatalf("DecrementStock: %v", err)
	}
	err := store.DecrementStock(ctx, p.ID, 1)
	if !errors.Is(err, apperr.ErrStock) {
		t.Fatalf("err = %v, want stock error", err)
	}

	got, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("quantity = %d, want 0", got.Quantity)
	}

	if err := store.RestoreStock(ctx, p.ID, 3); err != nil {
		t.Fatalf("RestoreStock: %v", err)
	}
	got, _ = store.GetProduct(ctx, p.ID)
	if got.Quantity != 3 {
		t.Errorf("quantity after restore = %d, want 3", got.Quantity)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	p := repotest.Product(t, store, "Lamp", "20", 5)

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.DecrementStock(ctx, p.ID, 3); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	got, _ := store.GetProduct(ctx, p.ID)
	if got.Quantity != 5 {
		t.Errorf("quantity = %d, want 5 after rollback", got.Quantity)
	}
}

func TestGetOrCreateActiveCartIsSingular(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)

	first, err := store.GetOrCreateActiveCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateActiveCart: %v", err)
	}
	second, err := store.GetOrCreateActiveCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateActiveCart: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("got two active carts %s and %s", first.ID, second.ID)
	}

	if err := store.ConvertCart(ctx, first.ID); err != nil {
		t.Fatalf("ConvertCart: %v", err)
	}
	third, err := store.GetOrCreateActiveCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateActiveCart: %v", err)
	}
	if third.ID == first.ID {
		t.Error("converted cart must not be returned as active")
	}
}

func TestCreateActiveCartReturnsExistingOnConflict(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)

	existing, err := store.GetOrCreateActiveCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateActiveCart: %v", err)
	}

	err = store.Transaction(ctx, func(tx *repository.Store) error {
		got, err := tx.CreateActiveCart(ctx, "user-1")
		if err != nil {
			return err
		}
		if got.ID != existing.ID {
			t.Errorf("cart = %s, want existing %s", got.ID, existing.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func TestLockSpentBundles(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	limit := 1
	bundle := func(name string, max *int) *models.Bundle {
		two, one := 2, 1
		b := &models.Bundle{
			ID: uuid.NewString(), Name: name, Type: promotion.KindBuyXGetY,
			ProductIDs: models.NewIDList("p1"), RequiredQuantity: &two, FreeQuantity: &one,
			MaxRedemptions: max, AutoApply: true, IsActive: true,
		}
		if err := store.CreateBundle(ctx, b); err != nil {
			t.Fatalf("CreateBundle: %v", err)
		}
		return b
	}
	capped := bundle("capped", &limit)
	open := bundle("open", nil)

	spent, err := store.LockSpentBundles(ctx, []string{capped.ID, open.ID})
	if err != nil {
		t.Fatalf("LockSpentBundles: %v", err)
	}
	if len(spent) != 0 {
		t.Errorf("spent = %v, want none", spent)
	}

	if err := store.IncrementBundleRedemption(ctx, capped.ID); err != nil {
		t.Fatalf("IncrementBundleRedemption: %v", err)
	}
	if err := store.IncrementBundleRedemption(ctx, capped.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("over limit: err = %v, want validation", err)
	}
	spent, err = store.LockSpentBundles(ctx, []string{open.ID, capped.ID, capped.ID})
	if err != nil {
		t.Fatalf("LockSpentBundles: %v", err)
	}
	if len(spent) != 1 || spent[0] != capped.ID {
		t.Errorf("spent = %v, want [%s]", spent, capped.ID)
	}
}

func TestCouponUsageGuard(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	limit := 1
	c := &models.Coupon{
		ID: uuid.NewString(), Code: "once", Name: "Once", Type: promotion.KindFixedAmount,
		Value: decimal.NewFromInt(5), AppliesTo: string(promotion.CouponAllItems),
		UsageLimit: &limit, IsActive: true,
	}
	if err := store.CreateCoupon(ctx, c); err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}

	dup := *c
	dup.ID = uuid.NewString()
	dup.Code = "Once"
	if err := store.CreateCoupon(ctx, &dup); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate code: err = %v, want conflict", err)
	}

	if err := store.IncrementCouponUsage(ctx, c.ID); err != nil {
		t.Fatalf("IncrementCouponUsage: %v", err)
	}
	if err := store.IncrementCouponUsage(ctx, c.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("over limit: err = %v, want validation", err)
	}

	got, err := store.CouponByCode(ctx, " once ")
	if err != nil {
		t.Fatalf("CouponByCode: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.UsageCount)
	}
	if _, err := store.CouponByCode(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown code: err = %v", err)
	}
}

func TestActivePromotionsRespectWindow(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	for _, d := range []*models.Discount{
		{ID: uuid.NewString(), Name: "live", Type: promotion.KindPercentage, Value: decimal.NewFromInt(10), AppliesTo: "all", IsActive: true},
		{ID: uuid.NewString(), Name: "expired", Type: promotion.KindPercentage, Value: decimal.NewFromInt(10), AppliesTo: "all", IsActive: true, ValidUntil: &past},
		{ID: uuid.NewString(), Name: "off", Type: promotion.KindPercentage, Value: decimal.NewFromInt(10), AppliesTo: "all", IsActive: false},
	} {
		if err := store.CreateDiscount(ctx, d); err != nil {
			t.Fatalf("CreateDiscount: %v", err)
		}
	}

	got, err := store.ActiveDiscounts(ctx, now)
	if err != nil {
		t.Fatalf("ActiveDiscounts: %v", err)
	}
	if len(got) != 1 || got[0].Name != "live" {
		t.Errorf("active discounts = %+v", got)
	}
}

func TestListOrdersAndStats(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)

	mk := func(user string, status models.OrderStatus, pay models.PaymentStatus, total string) {
		o := &models.Order{
			ID: uuid.NewString(), OrderNumber: "ORD-" + uuid.NewString()[:12], UserID: user,
			Status: status, PaymentStatus: pay, PaymentMethod: models.PaymentCard,
			Subtotal: decimal.RequireFromString(total), Tax: decimal.Zero, ShippingCost: decimal.Zero,
			Discount: decimal.Zero, Total: decimal.RequireFromString(total),
		}
		if err := store.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	mk("u1", models.OrderPending, models.PaymentPending, "10")
	mk("u1", models.OrderDelivered, models.PaymentPaid, "25.50")
	mk("u2", models.OrderShipped, models.PaymentPaid, "4.50")

	orders, total, err := store.ListOrders(ctx, repository.OrderFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if total != 2 || len(orders) != 2 {
		t.Errorf("u1 orders = %d (total %d), want 2", len(orders), total)
	}

	stats, err := store.OrderStats(ctx, 10)
	if err != nil {
		t.Fatalf("OrderStats: %v", err)
	}
	if stats.TotalOrders != 3 {
		t.Errorf("total orders = %d", stats.TotalOrders)
	}
	if !stats.TotalRevenue.Equal(decimal.NewFromInt(30)) {
		t.Errorf("revenue = %s, want 30", stats.TotalRevenue)
	}
	if stats.ByStatus["shipped"] != 1 || len(stats.Recent) != 3 {
		t.Errorf("stats = %+v", stats)
	}
}
