package model

import (
	"time"
)

// OrderAudit is an append-only trail of order lifecycle events, written by the
// audit consumer from the event topic. EventID is unique so redelivered
// messages are no-ops.
type OrderAudit struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID    string    `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	EventType  string    `gorm:"size:32;not null;index" json:"event_type"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	OrderNo    string    `gorm:"size:64;index;not null" json:"order_no"`
	UserID     int64     `gorm:"not null;index" json:"user_id"`
	Status     string    `gorm:"size:16;not null" json:"status"`
	TotalCents int64     `gorm:"not null" json:"total_cents"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
}

func (OrderAudit) TableName() string { return "order_audits" }
