package redis

import (
	"context"
	"strconv"
	"time"

	"bookshop/internal/model"

	rd "github.com/redis/go-redis/v9"
)

// Catalog read cache for the product-detail endpoint. Staleness here only
// delays price/title changes for catalog reads; placed orders carry their own
// frozen unit price and are unaffected.

// GetCachedProduct looks up a product in the cache. found=false on miss.
func GetCachedProduct(ctx context.Context, rdb *rd.Client, productID uint) (model.Product, bool, error) {
	key := ProductCacheKey(productID)
	m, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return model.Product{}, false, err
	}
	if len(m) == 0 {
		return model.Product{}, false, nil
	}

	price, err := strconv.ParseInt(m["price_cents"], 10, 64)
	if err != nil {
		return model.Product{}, false, nil // treat a mangled entry as a miss
	}
	return model.Product{
		ID:         productID,
		SKU:        m["sku"],
		Title:      m["title"],
		Author:     m["author"],
		PriceCents: price,
	}, true, nil
}

// PutCachedProduct stores a product and refreshes the key TTL.
func PutCachedProduct(ctx context.Context, rdb *rd.Client, p model.Product, ttl time.Duration) error {
	key := ProductCacheKey(p.ID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"sku", p.SKU,
		"title", p.Title,
		"author", p.Author,
		"price_cents", strconv.FormatInt(p.PriceCents, 10),
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateProduct drops the cached entry after a catalog write.
func InvalidateProduct(ctx context.Context, rdb *rd.Client, productID uint) error {
	return rdb.Del(ctx, ProductCacheKey(productID)).Err()
}
