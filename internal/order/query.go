package order

import (
	"context"
	"time"

	"bookshop/internal/model"
	"bookshop/internal/store"
)

// OrderSummary is one row of a user's order history.
type OrderSummary struct {
	OrderID    uint              `json:"order_id"`
	OrderNo    string            `json:"order_no"`
	Status     model.OrderStatus `json:"status"`
	TotalCents int64             `json:"total_cents"`
	CreatedAt  time.Time         `json:"created_at"`
	ItemsCount int64             `json:"items_count"`
}

// OrderPage is one page of summaries plus pagination bookkeeping.
type OrderPage struct {
	Orders      []OrderSummary `json:"orders"`
	TotalOrders int64          `json:"total_orders"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	TotalPages  int64          `json:"total_pages"`
	HasNext     bool           `json:"has_next"`
	HasPrevious bool           `json:"has_previous"`
}

// GetUserOrders pages a user's orders newest-first. Bounds on page and
// page_size are the caller's job (the HTTP layer validates them); this only
// does the arithmetic.
func (e *Engine) GetUserOrders(ctx context.Context, userID int64, page, pageSize int) (*OrderPage, error) {
	db := e.db.WithContext(ctx)
	offset := (page - 1) * pageSize

	orders, err := store.ListOrdersByUser(db, userID, pageSize, offset)
	if err != nil {
		return nil, e.failure("list user orders", err)
	}
	total, err := store.CountOrdersByUser(db, userID)
	if err != nil {
		return nil, e.failure("list user orders", err)
	}

	var totalPages int64
	if total > 0 {
		totalPages = (total + int64(pageSize) - 1) / int64(pageSize)
	}

	out := &OrderPage{
		Orders:      make([]OrderSummary, 0, len(orders)),
		TotalOrders: total,
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasNext:     int64(page) < totalPages,
		HasPrevious: page > 1,
	}
	for _, o := range orders {
		n, err := store.CountOrderItems(db, o.ID)
		if err != nil {
			return nil, e.failure("list user orders", err)
		}
		out.Orders = append(out.Orders, OrderSummary{
			OrderID:    o.ID,
			OrderNo:    o.OrderNo,
			Status:     o.Status,
			TotalCents: o.TotalCents,
			CreatedAt:  o.CreatedAt,
			ItemsCount: n,
		})
	}
	return out, nil
}
