package queue

import (
	"fmt"
	"time"
)

// Event types emitted on successful lifecycle transitions.
const (
	EventOrderCreated   = "order.created"
	EventOrderValidated = "order.validated"
	EventOrderCompleted = "order.completed"
	EventOrderCanceled  = "order.canceled"
)

// OrderEvent is the message published after each lifecycle transition.
// Keyed by OrderNo so all events of one order keep their relative order.
type OrderEvent struct {
	EventID    string    `json:"event_id"` // uuid, idempotency key downstream
	EventType  string    `json:"event_type"`
	OrderID    uint      `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	UserID     int64     `json:"user_id"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate does minimal field checks so consumers never process dirty events.
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch e.EventType {
	case EventOrderCreated, EventOrderValidated, EventOrderCompleted, EventOrderCanceled:
	default:
		return fmt.Errorf("unknown event_type %q", e.EventType)
	}
	if e.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.OrderNo == "" {
		return fmt.Errorf("order_no is required")
	}
	if e.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.Status == "" {
		return fmt.Errorf("status is required")
	}
	if e.TotalCents < 0 {
		return fmt.Errorf("total_cents must not be negative")
	}
	return nil
}
