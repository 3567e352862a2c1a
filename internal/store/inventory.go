package store

import (
	"errors"
	"fmt"
	"time"

	"bookshop/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNoInventoryRecord means the product has no inventory record at all.
	ErrNoInventoryRecord = errors.New("inventory: no record for product")
	// ErrInventoryExists is returned by CreateInventory on a duplicate product.
	ErrInventoryExists = errors.New("inventory: record already exists")
	// ErrInsufficientAvailable means quantity - reserved < requested amount.
	ErrInsufficientAvailable = errors.New("inventory: insufficient available stock")
	// ErrReservedUnderflow means a release would drive reserved below zero.
	ErrReservedUnderflow = errors.New("inventory: reserved would go negative")
	// ErrReservationShort means a commit was asked for more than is reserved.
	ErrReservationShort = errors.New("inventory: reserved less than commit amount")
)

// CreateInventory initializes the record for a product. Fails if one exists.
func CreateInventory(db *gorm.DB, productID uint, quantity, reserved int64) (*model.InventoryRecord, error) {
	if quantity < 0 || reserved < 0 || reserved > quantity {
		return nil, fmt.Errorf("inventory: invalid initial counters quantity=%d reserved=%d", quantity, reserved)
	}
	var existing model.InventoryRecord
	err := db.Where("product_id = ?", productID).First(&existing).Error
	if err == nil {
		return nil, ErrInventoryExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	rec := &model.InventoryRecord{
		ProductID:   productID,
		Quantity:    quantity,
		Reserved:    reserved,
		LastUpdated: time.Now().UTC(),
	}
	if err := db.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// GetInventory fetches the record for a product.
func GetInventory(db *gorm.DB, productID uint) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	if err := db.Where("product_id = ?", productID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoInventoryRecord
		}
		return nil, err
	}
	return &rec, nil
}

// EffectiveAvailable returns quantity - reserved for a product.
func EffectiveAvailable(db *gorm.DB, productID uint) (int64, error) {
	rec, err := GetInventory(db, productID)
	if err != nil {
		return 0, err
	}
	return rec.Quantity - rec.Reserved, nil
}

// ReserveStock earmarks amount units for an in-flight order. The guard is a
// single conditional UPDATE, so concurrent reservations against the same
// product can never drive reserved past quantity even across transactions.
func ReserveStock(db *gorm.DB, productID uint, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("inventory: reserve amount must be positive, got %d", amount)
	}
	res := db.Model(&model.InventoryRecord{}).
		Where("product_id = ? AND quantity - reserved >= ?", productID, amount).
		Updates(map[string]any{
			"reserved":     gorm.Expr("reserved + ?", amount),
			"last_updated": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return classifyMiss(db, productID, ErrInsufficientAvailable)
	}
	return nil
}

// ReleaseStock gives back a reservation. Reserved never goes below zero; a
// release larger than the outstanding reservation fails instead.
func ReleaseStock(db *gorm.DB, productID uint, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("inventory: release amount must be positive, got %d", amount)
	}
	res := db.Model(&model.InventoryRecord{}).
		Where("product_id = ? AND reserved >= ?", productID, amount).
		Updates(map[string]any{
			"reserved":     gorm.Expr("reserved - ?", amount),
			"last_updated": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return classifyMiss(db, productID, ErrReservedUnderflow)
	}
	return nil
}

// CommitStock converts a reservation into a permanent decrement: both
// reserved and quantity drop by amount. Requires reserved >= amount.
func CommitStock(db *gorm.DB, productID uint, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("inventory: commit amount must be positive, got %d", amount)
	}
	res := db.Model(&model.InventoryRecord{}).
		Where("product_id = ? AND reserved >= ?", productID, amount).
		Updates(map[string]any{
			"reserved":     gorm.Expr("reserved - ?", amount),
			"quantity":     gorm.Expr("quantity - ?", amount),
			"last_updated": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return classifyMiss(db, productID, ErrReservationShort)
	}
	return nil
}

// RepairNegativeReserved normalizes inherited bad rows (reserved < 0) back to
// zero. Out-of-band operational tool, not part of the ledger protocol.
func RepairNegativeReserved(db *gorm.DB) (int64, error) {
	res := db.Model(&model.InventoryRecord{}).
		Where("reserved < 0").
		Updates(map[string]any{
			"reserved":     0,
			"last_updated": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// classifyMiss tells a missing record apart from a failed counter guard.
func classifyMiss(db *gorm.DB, productID uint, guardErr error) error {
	var rec model.InventoryRecord
	if err := db.Where("product_id = ?", productID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoInventoryRecord
		}
		return err
	}
	return guardErr
}
