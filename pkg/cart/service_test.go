package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func TestAddItemMergesLines(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	svc := NewService(store, zaptest.NewLogger(t))
	p := repotest.Product(t, store, "Mug", "12.50", 10)

	if _, err := svc.AddItem(ctx, "u1", AddItemInput{ProductID: p.ID, Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	view, err := svc.AddItem(ctx, "u1", AddItemInput{ProductID: p.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if len(view.Items) != 1 {
		t.Fatalf("items = %d, want 1 merged line", len(view.Items))
	}
	if view.ItemCount != 5 {
		t.Errorf("item count = %d, want 5", view.ItemCount)
	}
	if !view.Subtotal.Equal(decimal.RequireFromString("62.50")) {
		t.Errorf("subtotal = %s, want 62.50", view.Subtotal)
	}
}

func TestAddItemSnapshotsVariantPrice(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	svc := NewService(store, zaptest.NewLogger(t))
	p := repotest.Product(t, store, "Shirt", "20.00", 0)

	v := &models.ProductVariant{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		SKU:       "SHIRT-L",
		Price:     decimal.NewNullDecimal(decimal.RequireFromString("24.00")),
		Quantity:  3,
		IsActive:  true,
	}
	if err := store.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant: %v", err)
	}

	view, err := svc.AddItem(ctx, "u1", AddItemInput{ProductID: p.ID, VariantID: v.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if got := view.Items[0].Price; !got.Equal(decimal.NewFromInt(24)) {
		t.Errorf("price = %s, want 24", got)
	}

	// Variant stock is 3; the product row's 0 does not apply.
	_, err = svc.AddItem(ctx, "u1", AddItemInput{ProductID: p.ID, VariantID: v.ID, Quantity: 2})
	if !errors.Is(err, apperr.ErrStock) {
		t.Errorf("err = %v, want stock error", err)
	}
}

func TestAddItemRejectsUnavailable(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	svc := NewService(store, zaptest.NewLogger(t))
	p := repotest.Product(t, store, "Lamp", "30.00", 1)

	tests := []struct {
		name string
		in   AddItemInput
		want error
	}{
		{"missing product", AddItemInput{ProductID: "nope", Quantity: 1}, apperr.ErrNotFound},
		{"zero quantity", AddItemInput{ProductID: p.ID, Quantity: 0}, apperr.ErrValidation},
		{"over stock", AddItemInput{ProductID: p.ID, Quantity: 2}, apperr.ErrStock},
		{"unknown variant", AddItemInput{ProductID: p.ID, VariantID: "nope", Quantity: 1}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, "u1", tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateRemoveClear(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	svc := NewService(store, zaptest.NewLogger(t))
	a := repotest.Product(t, store, "A", "5.00", 10)
	b := repotest.Product(t, store, "B", "7.00", 10)

	svc.AddItem(ctx, "u1", AddItemInput{ProductID: a.ID, Quantity: 1})
	view, err := svc.AddItem(ctx, "u1", AddItemInput{ProductID: b.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	var lineA string
	for _, item := range view.Items {
		if item.ProductID == a.ID {
			lineA = item.ID
		}
	}

	view, err = svc.UpdateItem(ctx, "u1", lineA, 4)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if view.ItemCount != 5 || !view.Subtotal.Equal(decimal.NewFromInt(27)) {
		t.Errorf("after update count=%d subtotal=%s", view.ItemCount, view.Subtotal)
	}

	if _, err := svc.UpdateItem(ctx, "u1", lineA, 11); !errors.Is(err, apperr.ErrStock) {
		t.Errorf("update over stock err = %v", err)
	}
	if _, err := svc.UpdateItem(ctx, "u2", lineA, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("other user's line err = %v", err)
	}

	view, err = svc.RemoveItem(ctx, "u1", lineA)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(view.Items) != 1 {
		t.Errorf("after remove items = %d", len(view.Items))
	}

	view, err = svc.Clear(ctx, "u1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if view.ItemCount != 0 || !view.Subtotal.IsZero() {
		t.Errorf("after clear = %+v", view)
	}
	if again, _ := svc.Get(ctx, "u1"); again.ID != view.ID {
		t.Error("clear must keep the same active cart")
	}
}
