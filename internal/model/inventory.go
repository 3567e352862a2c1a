package model

import (
	"time"
)

// InventoryRecord tracks stock for one product. Invariant after every
// successful ledger operation: 0 <= reserved <= quantity. Effective
// availability is quantity - reserved. Callers never assign these columns
// directly; all mutation goes through the ledger in internal/store.
type InventoryRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ProductID   uint      `gorm:"not null;uniqueIndex" json:"product_id"`
	Quantity    int64     `gorm:"not null;default:0" json:"quantity"`
	Reserved    int64     `gorm:"not null;default:0" json:"reserved"`
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }
