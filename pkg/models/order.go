package models

import (
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/promotion"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// fulfilment rank; moves must not decrease it.
var orderRank = map[OrderStatus]int{
	OrderPending:    0,
	OrderProcessing: 1,
	OrderShipped:    2,
	OrderDelivered:  3,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderRefunded
}

// CanTransition reports whether an order may move from s to next. Staying
// in place is allowed so timestamps can be backfilled. A cancelled order can
// still be marked refunded once its payment is returned.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s == OrderCancelled && next == OrderRefunded {
		return true
	}
	if s.Terminal() {
		return false
	}
	switch next {
	case OrderCancelled:
		return s == OrderPending
	case OrderRefunded:
		return true
	}
	return orderRank[next] > orderRank[s]
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentPayPal, PaymentCashOnDelivery, PaymentBankTransfer:
		return true
	}
	return false
}

type Address struct {
	FullName   string `json:"full_name,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Validate requires street, city, postal code and country.
func (a Address) Validate(field string) []apperr.FieldError {
	var errs []apperr.FieldError
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, apperr.FieldError{Field: field + "." + name, Message: "is required"})
		}
	}
	check("street", a.Street)
	check("city", a.City)
	check("postal_code", a.PostalCode)
	check("country", a.Country)
	return errs
}

type Order struct {
	ID                string                                  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderNumber       string                                  `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_number"`
	UserID            string                                  `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Status            OrderStatus                             `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus     PaymentStatus                           `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaymentMethod     PaymentMethod                           `gorm:"type:varchar(30);not null" json:"payment_method"`
	Subtotal          decimal.Decimal                         `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax               decimal.Decimal                         `gorm:"type:decimal(10,2);not null" json:"tax"`
	ShippingCost      decimal.Decimal                         `gorm:"type:decimal(10,2);not null" json:"shipping_cost"`
	Discount          decimal.Decimal                         `gorm:"type:decimal(10,2);not null" json:"discount"`
	Total             decimal.Decimal                         `gorm:"type:decimal(10,2);not null" json:"total"`
	CouponCode        *string                                 `gorm:"type:varchar(64)" json:"coupon_code"`
	AppliedPromotions datatypes.JSONType[[]promotion.Applied] `json:"applied_promotions"`
	ShippingAddress   datatypes.JSONType[Address]             `json:"shipping_address"`
	BillingAddress    datatypes.JSONType[Address]             `json:"billing_address"`
	Notes             string                                  `gorm:"type:text" json:"notes,omitempty"`
	TrackingNumber    string                                  `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	ShippedAt         *time.Time                              `json:"shipped_at"`
	DeliveredAt       *time.Time                              `json:"delivered_at"`
	Items             []OrderItem                             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt         time.Time                               `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time                               `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshots the product as sold. ProductID is a weak reference.
type OrderItem struct {
	ID             string                                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID        string                                `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID      string                                `gorm:"type:varchar(36);not null;index" json:"product_id"`
	VariantID      string                                `gorm:"type:varchar(36)" json:"variant_id,omitempty"`
	VariantDetails datatypes.JSONType[map[string]string] `json:"variant_details,omitempty"`
	ProductName    string                                `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductSKU     string                                `gorm:"type:varchar(64)" json:"product_sku"`
	Quantity       int                                   `gorm:"not null" json:"quantity"`
	Price          decimal.Decimal                       `gorm:"type:decimal(10,2);not null" json:"price"`
	Total          decimal.Decimal                       `gorm:"type:decimal(10,2);not null" json:"total"`
	CreatedAt      time.Time                             `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
