package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Product struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	SKU            string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"sku"`
	CategoryID     string          `gorm:"type:varchar(36);index" json:"category_id,omitempty"`
	Price          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	TrackInventory bool            `gorm:"not null" json:"track_inventory"`
	IsActive       bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// ProductVariant overrides price and stock of its parent when set.
type ProductVariant struct {
	ID         string                                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID  string                                `gorm:"type:varchar(36);not null;index" json:"product_id"`
	SKU        string                                `gorm:"type:varchar(64);uniqueIndex;not null" json:"sku"`
	Name       string                                `gorm:"type:varchar(255)" json:"name"`
	Price      decimal.NullDecimal                   `gorm:"type:decimal(10,2)" json:"price"`
	Quantity   int                                   `gorm:"not null" json:"quantity"`
	Attributes datatypes.JSONType[map[string]string] `json:"attributes"`
	IsActive   bool                                  `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time                             `json:"created_at"`
	UpdatedAt  time.Time                             `json:"updated_at"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}

// EffectivePrice resolves the variant price when set, else the product price.
func (p *Product) EffectivePrice(v *ProductVariant) decimal.Decimal {
	if v != nil && v.Price.Valid {
		return v.Price.Decimal
	}
	return p.Price
}

// Available is the sellable stock for a line; tracked is false when stock is
// not tracked and therefore unlimited.
func (p *Product) Available(v *ProductVariant) (qty int, tracked bool) {
	if !p.TrackInventory {
		return 0, false
	}
	if v != nil {
		return v.Quantity, true
	}
	return p.Quantity, true
}
