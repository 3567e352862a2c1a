package redis

import "fmt"

// ProductCacheKey names the cached catalog entry for a product.
func ProductCacheKey(productID uint) string {
	return fmt.Sprintf("bookshop:catalog:product:%d", productID)
}

// RateLimitUserKey names the sliding-window counter for a user.
func RateLimitUserKey(userID int64) string {
	return fmt.Sprintf("bookshop:rate_limit:user:%d", userID)
}

// RateLimitIPKey names the sliding-window counter for a client IP.
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("bookshop:rate_limit:ip:%s", ip)
}
