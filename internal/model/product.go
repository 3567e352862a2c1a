package model

import (
	"time"
)

// Product is read-only reference data as far as the order system is
// concerned: the catalog owns it, orders only snapshot its price.
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SKU        string `gorm:"size:64;uniqueIndex;not null" json:"sku"`
	Title      string `gorm:"size:256;uniqueIndex;not null" json:"title"`
	Author     string `gorm:"size:128;index" json:"author"`
	PriceCents int64  `gorm:"not null" json:"price_cents"` // unit price, cents
}

func (Product) TableName() string { return "products" }
