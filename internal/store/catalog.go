package store

import (
	"errors"

	"bookshop/internal/model"

	"gorm.io/gorm"
)

// ErrProductNotFound means no catalog entry exists for the id.
var ErrProductNotFound = errors.New("catalog: product not found")

// GetProduct resolves a product id to its current title and price.
func GetProduct(db *gorm.DB, productID uint) (*model.Product, error) {
	var p model.Product
	if err := db.First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts pages the catalog by insertion order.
func ListProducts(db *gorm.DB, limit, offset int) ([]model.Product, error) {
	var list []model.Product
	if err := db.Order("id").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CreateProduct adds a catalog entry.
func CreateProduct(db *gorm.DB, p *model.Product) error {
	return db.Create(p).Error
}

// InventoryView joins a product with its stock counters for the admin surface.
type InventoryView struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Quantity  int64  `json:"quantity"`
	Reserved  int64  `json:"reserved"`
}

// ListInventory returns the joined product + inventory view, optionally
// filtered to one product.
func ListInventory(db *gorm.DB, productID uint) ([]InventoryView, error) {
	q := db.Model(&model.Product{}).
		Select("products.id AS product_id, products.sku, products.title, products.author, inventory_records.quantity, inventory_records.reserved").
		Joins("JOIN inventory_records ON inventory_records.product_id = products.id")
	if productID != 0 {
		q = q.Where("products.id = ?", productID)
	}
	var out []InventoryView
	if err := q.Order("products.id").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
