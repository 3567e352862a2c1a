package store

import (
	"errors"

	"bookshop/internal/model"

	"gorm.io/gorm"
)

// ErrOrderItemNotFound means the (order, product) line does not exist.
var ErrOrderItemNotFound = errors.New("orders: line item not found")

// CreateOrder persists a fresh draft order with zero total.
func CreateOrder(db *gorm.DB, userID int64, orderNo string) (*model.Order, error) {
	order := &model.Order{
		OrderNo:    orderNo,
		UserID:     userID,
		Status:     model.StatusDraft,
		TotalCents: 0,
	}
	if err := db.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder fetches an order by id. Returns gorm.ErrRecordNotFound when absent.
func GetOrder(db *gorm.DB, orderID uint) (*model.Order, error) {
	var order model.Order
	if err := db.First(&order, orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// AppendOrderItem adds one line with the frozen unit price; the sub-total is
// computed here so it is always price * quantity.
func AppendOrderItem(db *gorm.DB, orderID, productID uint, quantity int, unitPriceCents int64) (*model.OrderItem, error) {
	item := &model.OrderItem{
		OrderID:        orderID,
		ProductID:      productID,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		SubTotalCents:  unitPriceCents * int64(quantity),
	}
	if err := db.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// GetOrderItems lists all lines of an order.
func GetOrderItems(db *gorm.DB, orderID uint) ([]model.OrderItem, error) {
	var items []model.OrderItem
	if err := db.Where("order_id = ?", orderID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateOrderStatus writes the new status and restamps updated_at. No rule
// enforcement here; the lifecycle engine owns the transition table.
func UpdateOrderStatus(db *gorm.DB, orderID uint, status model.OrderStatus) error {
	res := db.Model(&model.Order{}).Where("id = ?", orderID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateOrderTotal writes the recomputed order total.
func UpdateOrderTotal(db *gorm.DB, orderID uint, totalCents int64) error {
	res := db.Model(&model.Order{}).Where("id = ?", orderID).
		Update("total_cents", totalCents)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateOrderItemQuantity sets a line's quantity and recomputes its sub-total
// from the frozen unit price.
func UpdateOrderItemQuantity(db *gorm.DB, orderID, productID uint, quantity int) (*model.OrderItem, error) {
	var item model.OrderItem
	err := db.Where("order_id = ? AND product_id = ?", orderID, productID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderItemNotFound
		}
		return nil, err
	}
	item.Quantity = quantity
	item.SubTotalCents = item.UnitPriceCents * int64(quantity)
	if err := db.Model(&item).Updates(map[string]any{
		"quantity":        item.Quantity,
		"sub_total_cents": item.SubTotalCents,
	}).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteOrderItem removes one line from an order.
func DeleteOrderItem(db *gorm.DB, orderID, productID uint) error {
	res := db.Where("order_id = ? AND product_id = ?", orderID, productID).
		Delete(&model.OrderItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderItemNotFound
	}
	return nil
}

// ListOrdersByUser pages through a user's orders, newest first.
func ListOrdersByUser(db *gorm.DB, userID int64, limit, offset int) ([]model.Order, error) {
	var orders []model.Order
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CountOrdersByUser returns the user's total order count.
func CountOrdersByUser(db *gorm.DB, userID int64) (int64, error) {
	var n int64
	err := db.Model(&model.Order{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// CountOrderItems returns the number of lines on one order.
func CountOrderItems(db *gorm.DB, orderID uint) (int64, error) {
	var n int64
	err := db.Model(&model.OrderItem{}).Where("order_id = ?", orderID).Count(&n).Error
	return n, err
}
