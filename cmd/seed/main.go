package main

import (
	"errors"
	"flag"
	"fmt"

	"bookshop/internal/model"
	"bookshop/internal/store"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type seedBook struct {
	sku, title, author string
	priceCents         int64
	stock              int64
}

var books = []seedBook{
	{"BK-0001", "The Go Programming Language", "Alan Donovan", 4599, 25},
	{"BK-0002", "Designing Data-Intensive Applications", "Martin Kleppmann", 5299, 18},
	{"BK-0003", "Clean Architecture", "Robert Martin", 3899, 30},
	{"BK-0004", "Database Internals", "Alex Petrov", 4999, 12},
	{"BK-0005", "Site Reliability Engineering", "Betsy Beyer", 4299, 20},
	{"BK-0006", "Concurrency in Go", "Katherine Cox-Buday", 3499, 15},
}

// seed fills the catalog and inventory so the server has something to sell.
// Existing rows are left alone so re-running is safe.
func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", "bookshop.db", "sqlite database path")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("db open: %v", err))
	}
	if err := db.AutoMigrate(&model.Product{}, &model.InventoryRecord{}); err != nil {
		panic(fmt.Sprintf("db migrate: %v", err))
	}

	var created int
	for _, b := range books {
		var existing model.Product
		err := db.Where("sku = ?", b.sku).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			panic(fmt.Sprintf("lookup %s: %v", b.sku, err))
		}
		p := &model.Product{
			SKU:        b.sku,
			Title:      b.title,
			Author:     b.author,
			PriceCents: b.priceCents,
		}
		if err := store.CreateProduct(db, p); err != nil {
			panic(fmt.Sprintf("create product %s: %v", b.sku, err))
		}
		if _, err := store.CreateInventory(db, p.ID, b.stock, 0); err != nil {
			panic(fmt.Sprintf("create inventory %s: %v", b.sku, err))
		}
		created++
	}
	fmt.Printf("seeded %d products (db=%s)\n", created, *dbPath)
}
