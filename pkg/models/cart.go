package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartAbandoned CartStatus = "abandoned"
	CartConverted CartStatus = "converted"
)

// Cart belongs to one user. ActiveOwner carries the user id while the cart
// is active and is cleared otherwise; its unique index allows at most one
// active cart per user.
type Cart struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Status      CartStatus `gorm:"type:varchar(20);not null" json:"status"`
	ActiveOwner *string    `gorm:"type:varchar(36);uniqueIndex" json:"-"`
	Items       []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Cart) TableName() string {
	return "carts"
}

// CartItem is unique per (cart, product, variant); VariantID is empty for
// lines without a variant. Price is the snapshot taken when added.
type CartItem struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID    string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_line" json:"cart_id"`
	ProductID string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_line" json:"product_id"`
	VariantID string          `gorm:"type:varchar(36);not null;default:'';uniqueIndex:idx_cart_line" json:"variant_id,omitempty"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}
