package order

import (
	"fmt"
	"strings"
)

// BusinessError is a recoverable rule violation: wrong state for a requested
// transition, unknown order, non-positive quantity. Callers map it to a 400.
type BusinessError struct {
	Msg string
}

func (e *BusinessError) Error() string { return e.Msg }

func businessErrorf(format string, args ...any) *BusinessError {
	return &BusinessError{Msg: fmt.Sprintf(format, args...)}
}

// ProductNotFoundError identifies the catalog id an order referenced but the
// catalog could not resolve.
type ProductNotFoundError struct {
	ProductID uint
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// StockShortfall describes one under-stocked line of a failed validation.
type StockShortfall struct {
	ProductID         uint   `json:"product_id"`
	ProductTitle      string `json:"product_title"`
	AvailableQuantity int64  `json:"available_quantity"`
	RequestedQuantity int64  `json:"requested_quantity"`
}

// InsufficientStockError carries every under-stocked product of a validation,
// not just the first one found.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	ids := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		ids = append(ids, fmt.Sprintf("%d", s.ProductID))
	}
	return fmt.Sprintf("insufficient stock for products: %s", strings.Join(ids, ", "))
}
