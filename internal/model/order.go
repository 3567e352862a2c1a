package model

import (
	"time"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	StatusDraft     OrderStatus = "draft"
	StatusCheck     OrderStatus = "check" // validated, stock reserved
	StatusCompleted OrderStatus = "completed"
	StatusCanceled  OrderStatus = "canceled"
)

// validNext is the transition table; completed and canceled are terminal.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusDraft:     {StatusCheck: true, StatusCanceled: true},
	StatusCheck:     {StatusCompleted: true, StatusCanceled: true},
	StatusCompleted: {},
	StatusCanceled:  {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return len(validNext[s]) == 0
}

// Order is the durable record of a cart turned into a purchase. Orders are
// never deleted; cancellation is a status transition.
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderNo    string      `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	UserID     int64       `gorm:"not null;index" json:"user_id"`
	Status     OrderStatus `gorm:"size:16;not null;default:draft;index" json:"status"`
	TotalCents int64       `gorm:"not null;default:0" json:"total_cents"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one product line within an order. UnitPriceCents is a snapshot
// of the catalog price at creation time and is never re-read later.
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID        uint  `gorm:"not null;uniqueIndex:idx_order_product,priority:1" json:"order_id"`
	ProductID      uint  `gorm:"not null;uniqueIndex:idx_order_product,priority:2" json:"product_id"`
	Quantity       int   `gorm:"not null" json:"quantity"`
	UnitPriceCents int64 `gorm:"not null" json:"unit_price_cents"`
	SubTotalCents  int64 `gorm:"not null" json:"sub_total_cents"`
}

func (OrderItem) TableName() string { return "order_items" }
