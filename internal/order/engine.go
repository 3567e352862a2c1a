package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookshop/internal/model"
	"bookshop/internal/queue"
	"bookshop/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher receives an event after each committed lifecycle transition.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// Engine drives the order lifecycle: draft -> check -> completed, with
// cancellation from draft or check. Every operation runs inside one
// transaction, so either all of its writes land or none do.
type Engine struct {
	db     *gorm.DB
	events EventPublisher
	log    *zap.Logger
}

// NewEngine wires the engine. events may be nil (no events published),
// logger may be nil (no-op logger).
func NewEngine(db *gorm.DB, events EventPublisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, events: events, log: log}
}

// ItemRequest is one (product, quantity) pair of an incoming cart.
type ItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// ItemDetail is one order line with its product title resolved.
type ItemDetail struct {
	OrderItemID    uint   `json:"order_item_id"`
	ProductID      uint   `json:"product_id"`
	ProductTitle   string `json:"product_title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubTotalCents  int64  `json:"sub_total_cents"`
}

// OrderDetails is the plain data contract every mutating operation returns.
type OrderDetails struct {
	OrderID    uint              `json:"order_id"`
	OrderNo    string            `json:"order_no"`
	UserID     int64             `json:"user_id"`
	Status     model.OrderStatus `json:"status"`
	TotalCents int64             `json:"total_cents"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Items      []ItemDetail      `json:"items"`
}

// CreateOrder turns a cart into a draft order. Prices are snapshotted from
// the catalog inside the transaction; an unknown product aborts the whole
// order, leaving no rows behind. Inventory is untouched at this stage.
func (e *Engine) CreateOrder(ctx context.Context, userID int64, items []ItemRequest) (*OrderDetails, error) {
	if userID <= 0 {
		return nil, businessErrorf("user id must be positive")
	}
	if len(items) == 0 {
		return nil, businessErrorf("order must contain at least one item")
	}
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	var details *OrderDetails
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := store.CreateOrder(tx, userID, newOrderNo())
		if err != nil {
			return err
		}
		var total int64
		for _, it := range merged {
			p, err := store.GetProduct(tx, it.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrProductNotFound) {
					return &ProductNotFoundError{ProductID: it.ProductID}
				}
				return err
			}
			line, err := store.AppendOrderItem(tx, o.ID, p.ID, it.Quantity, p.PriceCents)
			if err != nil {
				return err
			}
			total += line.SubTotalCents
		}
		if err := store.UpdateOrderTotal(tx, o.ID, total); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, o.ID)
		return err
	})
	if err != nil {
		return nil, e.failure("create order", err)
	}
	e.publish(ctx, queue.EventOrderCreated, details)
	return details, nil
}

// ValidateOrder moves draft -> check. Availability is checked for every line
// first so the error can enumerate all shortfalls; the reserve pass then uses
// the ledger's conditional guard, and the surrounding transaction rolls back
// any partial reservations if a line loses a concurrent race.
func (e *Engine) ValidateOrder(ctx context.Context, orderID uint) (*OrderDetails, error) {
	var details *OrderDetails
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !model.CanTransition(o.Status, model.StatusCheck) {
			return businessErrorf("order %d cannot move from %s to %s", orderID, o.Status, model.StatusCheck)
		}
		items, err := store.GetOrderItems(tx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return businessErrorf("order %d has no items to validate", orderID)
		}

		var shortfalls []StockShortfall
		for _, it := range items {
			avail, err := store.EffectiveAvailable(tx, it.ProductID)
			if err != nil {
				if !errors.Is(err, store.ErrNoInventoryRecord) {
					return err
				}
				avail = 0
			}
			if avail < int64(it.Quantity) {
				shortfalls = append(shortfalls, shortfall(tx, it.ProductID, avail, int64(it.Quantity)))
			}
		}
		if len(shortfalls) > 0 {
			return &InsufficientStockError{Shortfalls: shortfalls}
		}

		for _, it := range items {
			if err := store.ReserveStock(tx, it.ProductID, int64(it.Quantity)); err != nil {
				if errors.Is(err, store.ErrInsufficientAvailable) || errors.Is(err, store.ErrNoInventoryRecord) {
					avail, aerr := store.EffectiveAvailable(tx, it.ProductID)
					if aerr != nil {
						avail = 0
					}
					return &InsufficientStockError{Shortfalls: []StockShortfall{
						shortfall(tx, it.ProductID, avail, int64(it.Quantity)),
					}}
				}
				return err
			}
		}

		if err := store.UpdateOrderStatus(tx, orderID, model.StatusCheck); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, orderID)
		return err
	})
	if err != nil {
		return nil, e.failure("validate order", err)
	}
	e.publish(ctx, queue.EventOrderValidated, details)
	return details, nil
}

// ConfirmOrder moves check -> completed, converting every reservation into a
// permanent stock decrement. A short reservation means an earlier invariant
// was broken; the transition is aborted and nothing is committed.
func (e *Engine) ConfirmOrder(ctx context.Context, orderID uint) (*OrderDetails, error) {
	var details *OrderDetails
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !model.CanTransition(o.Status, model.StatusCompleted) {
			return businessErrorf("order %d cannot move from %s to %s", orderID, o.Status, model.StatusCompleted)
		}
		items, err := store.GetOrderItems(tx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := store.CommitStock(tx, it.ProductID, int64(it.Quantity)); err != nil {
				if errors.Is(err, store.ErrReservationShort) || errors.Is(err, store.ErrNoInventoryRecord) {
					return businessErrorf("could not commit reservation for product %d", it.ProductID)
				}
				return err
			}
		}
		if err := store.UpdateOrderStatus(tx, orderID, model.StatusCompleted); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, orderID)
		return err
	})
	if err != nil {
		return nil, e.failure("confirm order", err)
	}
	e.publish(ctx, queue.EventOrderCompleted, details)
	return details, nil
}

// CancelOrder marks an order canceled, first releasing any reservations its
// items hold (only check-state orders hold them). Canceling a completed or
// already-canceled order is rejected, so inventory is never double-released.
func (e *Engine) CancelOrder(ctx context.Context, orderID uint) (*OrderDetails, error) {
	var details *OrderDetails
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !model.CanTransition(o.Status, model.StatusCanceled) {
			return businessErrorf("order %d cannot be canceled from status %s", orderID, o.Status)
		}
		if o.Status == model.StatusCheck {
			items, err := store.GetOrderItems(tx, orderID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if err := store.ReleaseStock(tx, it.ProductID, int64(it.Quantity)); err != nil {
					if errors.Is(err, store.ErrReservedUnderflow) || errors.Is(err, store.ErrNoInventoryRecord) {
						return businessErrorf("could not release reservation for product %d", it.ProductID)
					}
					return err
				}
			}
		}
		if err := store.UpdateOrderStatus(tx, orderID, model.StatusCanceled); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, orderID)
		return err
	})
	if err != nil {
		return nil, e.failure("cancel order", err)
	}
	e.publish(ctx, queue.EventOrderCanceled, details)
	return details, nil
}

// EditOrderItem changes a draft line's quantity and recomputes its sub-total
// and the order total. Items are immutable once reservation begins.
func (e *Engine) EditOrderItem(ctx context.Context, orderID, productID uint, newQuantity int) (*OrderDetails, error) {
	if newQuantity < 1 {
		return nil, businessErrorf("quantity must be at least 1; delete the item to remove it")
	}
	var details *OrderDetails
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.StatusDraft {
			return businessErrorf("only draft orders can be edited; order %d is %s", orderID, o.Status)
		}
		if _, err := store.UpdateOrderItemQuantity(tx, orderID, productID, newQuantity); err != nil {
			if errors.Is(err, store.ErrOrderItemNotFound) {
				return businessErrorf("product %d is not part of order %d", productID, orderID)
			}
			return err
		}
		if err := e.recomputeTotal(tx, orderID); err != nil {
			return err
		}
		// deliberate no-op transition to restamp updated_at
		if err := store.UpdateOrderStatus(tx, orderID, model.StatusDraft); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, orderID)
		return err
	})
	if err != nil {
		return nil, e.failure("edit order item", err)
	}
	return details, nil
}

// DeleteOrderItem removes a draft line and recomputes the order total over
// the remaining items.
func (e *Engine) DeleteOrderItem(ctx context.Context, orderID, productID uint) (*OrderDetails, error) {
	var details *OrderDetails
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.StatusDraft {
			return businessErrorf("only draft orders can be edited; order %d is %s", orderID, o.Status)
		}
		if err := store.DeleteOrderItem(tx, orderID, productID); err != nil {
			if errors.Is(err, store.ErrOrderItemNotFound) {
				return businessErrorf("product %d is not part of order %d", productID, orderID)
			}
			return err
		}
		if err := e.recomputeTotal(tx, orderID); err != nil {
			return err
		}
		if err := store.UpdateOrderStatus(tx, orderID, model.StatusDraft); err != nil {
			return err
		}
		details, err = loadOrderDetails(tx, orderID)
		return err
	})
	if err != nil {
		return nil, e.failure("delete order item", err)
	}
	return details, nil
}

// GetOrderDetails is the read-only join of order + items + product titles.
func (e *Engine) GetOrderDetails(ctx context.Context, orderID uint) (*OrderDetails, error) {
	details, err := loadOrderDetails(e.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, e.failure("get order details", err)
	}
	return details, nil
}

func (e *Engine) recomputeTotal(tx *gorm.DB, orderID uint) error {
	items, err := store.GetOrderItems(tx, orderID)
	if err != nil {
		return err
	}
	var total int64
	for _, it := range items {
		total += it.SubTotalCents
	}
	return store.UpdateOrderTotal(tx, orderID, total)
}

// failure passes domain errors through untouched and collapses everything
// else (store connectivity and the like) into a generic business error.
func (e *Engine) failure(op string, err error) error {
	var be *BusinessError
	var pnf *ProductNotFoundError
	var ise *InsufficientStockError
	if errors.As(err, &be) || errors.As(err, &pnf) || errors.As(err, &ise) {
		return err
	}
	e.log.Error("order engine failure", zap.String("op", op), zap.Error(err))
	return businessErrorf("could not %s", op)
}

func (e *Engine) publish(ctx context.Context, eventType string, d *OrderDetails) {
	if e.events == nil || d == nil {
		return
	}
	ev := queue.OrderEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OrderID:    d.OrderID,
		OrderNo:    d.OrderNo,
		UserID:     d.UserID,
		Status:     string(d.Status),
		TotalCents: d.TotalCents,
		OccurredAt: time.Now().UTC(),
	}
	// Events are best-effort: the transition is already committed, a publish
	// failure must not fail the operation.
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("publish order event",
			zap.String("event_type", eventType),
			zap.String("order_no", d.OrderNo),
			zap.Error(err))
	}
}

func getOrder(tx *gorm.DB, orderID uint) (*model.Order, error) {
	o, err := store.GetOrder(tx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, businessErrorf("order %d not found", orderID)
		}
		return nil, err
	}
	return o, nil
}

func loadOrderDetails(db *gorm.DB, orderID uint) (*OrderDetails, error) {
	o, err := getOrder(db, orderID)
	if err != nil {
		return nil, err
	}
	items, err := store.GetOrderItems(db, orderID)
	if err != nil {
		return nil, err
	}
	out := &OrderDetails{
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
		Items:      make([]ItemDetail, 0, len(items)),
	}
	for _, it := range items {
		title := "unknown"
		if p, err := store.GetProduct(db, it.ProductID); err == nil {
			title = p.Title
		} else if !errors.Is(err, store.ErrProductNotFound) {
			return nil, err
		}
		out.Items = append(out.Items, ItemDetail{
			OrderItemID:    it.ID,
			ProductID:      it.ProductID,
			ProductTitle:   title,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubTotalCents:  it.SubTotalCents,
		})
	}
	return out, nil
}

func shortfall(tx *gorm.DB, productID uint, available, requested int64) StockShortfall {
	title := "unknown"
	if p, err := store.GetProduct(tx, productID); err == nil {
		title = p.Title
	}
	return StockShortfall{
		ProductID:         productID,
		ProductTitle:      title,
		AvailableQuantity: available,
		RequestedQuantity: requested,
	}
}

// mergeItems collapses duplicate product lines and rejects bad quantities.
func mergeItems(items []ItemRequest) ([]ItemRequest, error) {
	idx := make(map[uint]int, len(items))
	out := make([]ItemRequest, 0, len(items))
	for _, it := range items {
		if it.ProductID == 0 {
			return nil, businessErrorf("product id is required on every item")
		}
		if it.Quantity < 1 {
			return nil, businessErrorf("quantity must be at least 1 for product %d", it.ProductID)
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func newOrderNo() string {
	return "BK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
