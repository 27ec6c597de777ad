package models

import (
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/promotion"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var hundred = decimal.NewFromInt(100)

type IDList = datatypes.JSONType[[]string]

func NewIDList(ids ...string) IDList {
	return datatypes.NewJSONType(ids)
}

type Coupon struct {
	ID                 string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code               string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name               string              `gorm:"type:varchar(255)" json:"name"`
	Description        string              `gorm:"type:text" json:"description,omitempty"`
	Type               string              `gorm:"type:varchar(20);not null" json:"type"`
	Value              decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"value"`
	MinPurchaseAmount  decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"min_purchase_amount"`
	MaxDiscountAmount  decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"max_discount_amount"`
	UsageLimit         *int                `json:"usage_limit"`
	UsageLimitPerUser  *int                `json:"usage_limit_per_user"`
	UsageCount         int                 `gorm:"not null" json:"usage_count"`
	AppliesTo          string              `gorm:"type:varchar(30);not null" json:"applies_to"`
	ProductIDs         IDList              `json:"product_ids"`
	CategoryIDs        IDList              `json:"category_ids"`
	ExcludedProductIDs IDList              `json:"excluded_product_ids"`
	ValidFrom          *time.Time          `json:"valid_from"`
	ValidUntil         *time.Time          `json:"valid_until"`
	IsActive           bool                `gorm:"not null" json:"is_active"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}

func (c *Coupon) Validate() error {
	var errs []apperr.FieldError
	if c.Code == "" {
		errs = append(errs, apperr.FieldError{Field: "code", Message: "is required"})
	}
	switch c.Type {
	case promotion.KindPercentage:
		errs = append(errs, checkPercent("value", c.Value)...)
	case promotion.KindFixedAmount:
		if !c.Value.IsPositive() {
			errs = append(errs, apperr.FieldError{Field: "value", Message: "must be greater than 0"})
		}
	case promotion.KindFreeShipping:
	default:
		errs = append(errs, apperr.FieldError{Field: "type", Message: "must be one of percentage, fixed_amount, free_shipping"})
	}
	switch promotion.CouponTarget(c.AppliesTo) {
	case promotion.CouponAllItems, promotion.CouponSpecificProducts, promotion.CouponSpecificCategories:
	default:
		errs = append(errs, apperr.FieldError{Field: "applies_to", Message: "must be one of all, specific_products, specific_categories"})
	}
	if c.MinPurchaseAmount.IsNegative() {
		errs = append(errs, apperr.FieldError{Field: "min_purchase_amount", Message: "must not be negative"})
	}
	errs = append(errs, checkWindow(c.ValidFrom, c.ValidUntil)...)
	if len(errs) > 0 {
		return apperr.Invalid("invalid coupon", errs...)
	}
	return nil
}

// Promotion converts the row into its evaluator value.
func (c *Coupon) Promotion() (*promotion.Coupon, error) {
	var benefit promotion.CouponBenefit
	switch c.Type {
	case promotion.KindPercentage:
		benefit = promotion.PercentageOff{Percent: c.Value, Max: c.MaxDiscountAmount}
	case promotion.KindFixedAmount:
		benefit = promotion.AmountOff{Amount: c.Value}
	case promotion.KindFreeShipping:
		benefit = promotion.FreeShipping{}
	default:
		return nil, fmt.Errorf("coupon %s: unknown type %q", c.ID, c.Type)
	}
	return &promotion.Coupon{
		ID:                 c.ID,
		Code:               c.Code,
		Name:               c.Name,
		Benefit:            benefit,
		MinPurchase:        c.MinPurchaseAmount,
		UsageLimit:         c.UsageLimit,
		UsageLimitPerUser:  c.UsageLimitPerUser,
		UsageCount:         c.UsageCount,
		AppliesTo:          promotion.CouponTarget(c.AppliesTo),
		ProductIDs:         promotion.NewIDSet(c.ProductIDs.Data()...),
		CategoryIDs:        promotion.NewIDSet(c.CategoryIDs.Data()...),
		ExcludedProductIDs: promotion.NewIDSet(c.ExcludedProductIDs.Data()...),
		Window:             promotion.Window{From: c.ValidFrom, Until: c.ValidUntil},
		Active:             c.IsActive,
		CreatedAt:          c.CreatedAt,
	}, nil
}

type Discount struct {
	ID                   string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                 string              `gorm:"type:varchar(255);not null" json:"name"`
	Description          string              `gorm:"type:text" json:"description,omitempty"`
	Type                 string              `gorm:"type:varchar(20);not null" json:"type"`
	Value                decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"value"`
	AppliesTo            string              `gorm:"type:varchar(30);not null" json:"applies_to"`
	TargetIDs            IDList              `json:"target_ids"`
	ExcludedIDs          IDList              `json:"excluded_ids"`
	MinQuantity          int                 `gorm:"not null" json:"min_quantity"`
	MaxDiscountAmount    decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"max_discount_amount"`
	Priority             int                 `gorm:"not null;index" json:"priority"`
	Stackable            bool                `gorm:"not null" json:"stackable"`
	StackableWithCoupons bool                `gorm:"not null" json:"stackable_with_coupons"`
	ValidFrom            *time.Time          `json:"valid_from"`
	ValidUntil           *time.Time          `json:"valid_until"`
	IsActive             bool                `gorm:"not null;index" json:"is_active"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

func (Discount) TableName() string {
	return "discounts"
}

func (d *Discount) Validate() error {
	var errs []apperr.FieldError
	if d.Name == "" {
		errs = append(errs, apperr.FieldError{Field: "name", Message: "is required"})
	}
	switch d.Type {
	case promotion.KindPercentage:
		errs = append(errs, checkPercent("value", d.Value)...)
	case promotion.KindFixedAmount:
		if !d.Value.IsPositive() {
			errs = append(errs, apperr.FieldError{Field: "value", Message: "must be greater than 0"})
		}
	default:
		errs = append(errs, apperr.FieldError{Field: "type", Message: "must be one of percentage, fixed_amount"})
	}
	switch promotion.DiscountTarget(d.AppliesTo) {
	case promotion.DiscountAll:
	case promotion.DiscountCategory, promotion.DiscountProduct, promotion.DiscountProductVariant:
		if len(d.TargetIDs.Data()) == 0 {
			errs = append(errs, apperr.FieldError{Field: "target_ids", Message: "is required for a targeted discount"})
		}
	default:
		errs = append(errs, apperr.FieldError{Field: "applies_to", Message: "must be one of all, category, product, product_variant"})
	}
	if d.MinQuantity < 0 {
		errs = append(errs, apperr.FieldError{Field: "min_quantity", Message: "must not be negative"})
	}
	errs = append(errs, checkWindow(d.ValidFrom, d.ValidUntil)...)
	if len(errs) > 0 {
		return apperr.Invalid("invalid discount", errs...)
	}
	return nil
}

func (d *Discount) Promotion() (*promotion.Discount, error) {
	var benefit promotion.DiscountBenefit
	switch d.Type {
	case promotion.KindPercentage:
		benefit = promotion.PercentageOff{Percent: d.Value, Max: d.MaxDiscountAmount}
	case promotion.KindFixedAmount:
		benefit = promotion.AmountOff{Amount: d.Value}
	default:
		return nil, fmt.Errorf("discount %s: unknown type %q", d.ID, d.Type)
	}
	return &promotion.Discount{
		ID:                   d.ID,
		Name:                 d.Name,
		Benefit:              benefit,
		AppliesTo:            promotion.DiscountTarget(d.AppliesTo),
		TargetIDs:            promotion.NewIDSet(d.TargetIDs.Data()...),
		ExcludedIDs:          promotion.NewIDSet(d.ExcludedIDs.Data()...),
		MinQuantity:          d.MinQuantity,
		Priority:             d.Priority,
		Stackable:            d.Stackable,
		StackableWithCoupons: d.StackableWithCoupons,
		Window:               promotion.Window{From: d.ValidFrom, Until: d.ValidUntil},
		Active:               d.IsActive,
		CreatedAt:            d.CreatedAt,
	}, nil
}

// Bundle stores kind-specific fields as nullable columns; Promotion keeps
// only the fields of its kind.
type Bundle struct {
	ID                    string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                  string              `gorm:"type:varchar(255);not null" json:"name"`
	Description           string              `gorm:"type:text" json:"description,omitempty"`
	Type                  string              `gorm:"type:varchar(30);not null" json:"type"`
	ProductIDs            IDList              `json:"product_ids"`
	RequiredQuantity      *int                `json:"required_quantity"`
	FreeQuantity          *int                `json:"free_quantity"`
	FreeProductID         *string             `gorm:"type:varchar(36)" json:"free_product_id"`
	BundlePrice           decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"bundle_price"`
	DiscountPercentage    decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"discount_percentage"`
	MinItemsRequired      int                 `gorm:"not null" json:"min_items_required"`
	MaxRedemptions        *int                `json:"max_redemptions"`
	MaxRedemptionsPerUser *int                `json:"max_redemptions_per_user"`
	CurrentRedemptions    int                 `gorm:"not null" json:"current_redemptions"`
	AutoApply             bool                `gorm:"not null" json:"auto_apply"`
	RequiresAllProducts   bool                `gorm:"not null" json:"requires_all_products"`
	Priority              int                 `gorm:"not null;index" json:"priority"`
	Stackable             bool                `gorm:"not null" json:"stackable"`
	StackableWithCoupons  bool                `gorm:"not null" json:"stackable_with_coupons"`
	ValidFrom             *time.Time          `json:"valid_from"`
	ValidUntil            *time.Time          `json:"valid_until"`
	IsActive              bool                `gorm:"not null;index" json:"is_active"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func (Bundle) TableName() string {
	return "bundles"
}

func (b *Bundle) Validate() error {
	var errs []apperr.FieldError
	if b.Name == "" {
		errs = append(errs, apperr.FieldError{Field: "name", Message: "is required"})
	}
	if len(b.ProductIDs.Data()) == 0 {
		errs = append(errs, apperr.FieldError{Field: "product_ids", Message: "must contain at least one product"})
	}
	switch b.Type {
	case promotion.KindBuyXGetY:
		if b.RequiredQuantity == nil || *b.RequiredQuantity < 1 {
			errs = append(errs, apperr.FieldError{Field: "required_quantity", Message: "must be at least 1"})
		}
		if b.FreeQuantity == nil || *b.FreeQuantity < 1 {
			errs = append(errs, apperr.FieldError{Field: "free_quantity", Message: "must be at least 1"})
		}
	case promotion.KindBundlePrice:
		if !b.BundlePrice.Valid || b.BundlePrice.Decimal.IsNegative() {
			errs = append(errs, apperr.FieldError{Field: "bundle_price", Message: "is required and must not be negative"})
		}
	case promotion.KindBundlePercentage:
		if !b.DiscountPercentage.Valid {
			errs = append(errs, apperr.FieldError{Field: "discount_percentage", Message: "is required"})
		} else {
			errs = append(errs, checkPercent("discount_percentage", b.DiscountPercentage.Decimal)...)
		}
	default:
		errs = append(errs, apperr.FieldError{Field: "type", Message: "must be one of buy_x_get_y, bundle_price, bundle_percentage"})
	}
	errs = append(errs, checkWindow(b.ValidFrom, b.ValidUntil)...)
	if len(errs) > 0 {
		return apperr.Invalid("invalid bundle", errs...)
	}
	return nil
}

func (b *Bundle) Promotion() (*promotion.Bundle, error) {
	var rule promotion.BundleRule
	switch b.Type {
	case promotion.KindBuyXGetY:
		r := promotion.BuyXGetY{}
		if b.RequiredQuantity != nil {
			r.RequiredQuantity = *b.RequiredQuantity
		}
		if b.FreeQuantity != nil {
			r.FreeQuantity = *b.FreeQuantity
		}
		if b.FreeProductID != nil {
			r.FreeProductID = *b.FreeProductID
		}
		rule = r
	case promotion.KindBundlePrice:
		rule = promotion.FixedPrice{Price: b.BundlePrice.Decimal}
	case promotion.KindBundlePercentage:
		rule = promotion.BundlePercentage{Percent: b.DiscountPercentage.Decimal}
	default:
		return nil, fmt.Errorf("bundle %s: unknown type %q", b.ID, b.Type)
	}
	return &promotion.Bundle{
		ID:                    b.ID,
		Name:                  b.Name,
		Rule:                  rule,
		ProductIDs:            b.ProductIDs.Data(),
		MinItemsRequired:      b.MinItemsRequired,
		MaxRedemptions:        b.MaxRedemptions,
		MaxRedemptionsPerUser: b.MaxRedemptionsPerUser,
		CurrentRedemptions:    b.CurrentRedemptions,
		AutoApply:             b.AutoApply,
		RequiresAllProducts:   b.RequiresAllProducts,
		Priority:              b.Priority,
		Stackable:             b.Stackable,
		StackableWithCoupons:  b.StackableWithCoupons,
		Window:                promotion.Window{From: b.ValidFrom, Until: b.ValidUntil},
		Active:                b.IsActive,
		CreatedAt:             b.CreatedAt,
	}, nil
}

func checkPercent(field string, v decimal.Decimal) []apperr.FieldError {
	if !v.IsPositive() || v.GreaterThan(hundred) {
		return []apperr.FieldError{{Field: field, Message: "must be between 0 and 100"}}
	}
	return nil
}

func checkWindow(from, until *time.Time) []apperr.FieldError {
	if from != nil && until != nil && until.Before(*from) {
		return []apperr.FieldError{{Field: "valid_until", Message: "must not be before valid_from"}}
	}
	return nil
}
