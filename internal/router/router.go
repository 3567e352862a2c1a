package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"bookshop/internal/config"
	"bookshop/internal/middleware"
	"bookshop/internal/model"
	"bookshop/internal/order"
	"bookshop/internal/store"
	rediskey "bookshop/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup registers all HTTP routes. The order routes are a thin translation
// layer: input shape checks happen here, business rules live in the engine.
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, engine *order.Engine, log *zap.Logger, cfg config.AppConfig) {
	if log == nil {
		log = zap.NewNop()
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Catalog
	r.GET("/api/products", listProducts(db))
	r.GET("/api/products/:product_id", getProduct(db, rdb, cfg, log))
	r.POST("/api/products", adminOnly(cfg.AdminToken), createProduct(db, rdb, log))

	// Inventory admin surface
	r.GET("/api/inventory", adminOnly(cfg.AdminToken), listInventory(db))
	r.POST("/api/inventory", adminOnly(cfg.AdminToken), createInventory(db))
	r.POST("/api/inventory/repair", adminOnly(cfg.AdminToken), repairInventory(db))

	// Order lifecycle
	limited := middleware.RedisRateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow)
	r.POST("/api/orders", limited, createOrder(engine))
	r.GET("/api/orders/:order_id", getOrder(engine))
	r.POST("/api/orders/:order_id/validate", limited, validateOrder(engine))
	r.POST("/api/orders/:order_id/confirm", limited, confirmOrder(engine))
	r.POST("/api/orders/:order_id/cancel", limited, cancelOrder(engine))
	r.PATCH("/api/orders/:order_id/items/:product_id", limited, editOrderItem(engine))
	r.DELETE("/api/orders/:order_id/items/:product_id", limited, deleteOrderItem(engine))

	// Order history
	r.GET("/api/users/:user_id/orders", getUserOrders(engine))
}

// renderEngineError maps engine errors to stable codes:
// product not found -> 404 PRODUCT_NOT_FOUND, shortfalls -> 409
// INSUFFICIENT_STOCK, other business errors -> 400, anything else -> 500.
func renderEngineError(c *gin.Context, err error) {
	var pnf *order.ProductNotFoundError
	if errors.As(err, &pnf) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":       404,
			"error_code": "PRODUCT_NOT_FOUND",
			"msg":        pnf.Error(),
			"product_id": pnf.ProductID,
		})
		return
	}
	var ise *order.InsufficientStockError
	if errors.As(err, &ise) {
		c.JSON(http.StatusConflict, gin.H{
			"code":       409,
			"error_code": "INSUFFICIENT_STOCK",
			"msg":        ise.Error(),
			"products":   ise.Shortfalls,
		})
		return
	}
	var be *order.BusinessError
	if errors.As(err, &be) {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": be.Msg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
}

func adminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token required"})
			return
		}
		c.Next()
	}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

func listProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pageParams(c, 50)
		list, err := store.ListProducts(db, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func getProduct(db *gorm.DB, rdb *rd.Client, cfg config.AppConfig, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "product_id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if p, found, err := rediskey.GetCachedProduct(ctx, rdb, id); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
			return
		}
		p, err := store.GetProduct(db, id)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		if err := rediskey.PutCachedProduct(ctx, rdb, *p, cfg.ProductCacheTTL); err != nil {
			log.Warn("cache product", zap.Uint("product_id", id), zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func createProduct(db *gorm.DB, rdb *rd.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SKU        string `json:"sku" binding:"required"`
			Title      string `json:"title" binding:"required"`
			Author     string `json:"author"`
			PriceCents int64  `json:"price_cents" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		p := &model.Product{
			SKU:        req.SKU,
			Title:      req.Title,
			Author:     req.Author,
			PriceCents: req.PriceCents,
		}
		if err := store.CreateProduct(db, p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := rediskey.InvalidateProduct(c.Request.Context(), rdb, p.ID); err != nil {
			log.Warn("invalidate product cache", zap.Uint("product_id", p.ID), zap.Error(err))
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

func listInventory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var productID uint
		if s := c.Query("product_id"); s != "" {
			v, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid product_id"})
				return
			}
			productID = uint(v)
		}
		list, err := store.ListInventory(db, productID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createInventory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ProductID uint  `json:"product_id" binding:"required,min=1"`
			Quantity  int64 `json:"quantity" binding:"required,min=0"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if _, err := store.GetProduct(db, req.ProductID); err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		rec, err := store.CreateInventory(db, req.ProductID, req.Quantity, 0)
		if err != nil {
			if errors.Is(err, store.ErrInventoryExists) {
				c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "inventory record already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": rec})
	}
}

func repairInventory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := store.RepairNegativeReserved(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"repaired": n}})
	}
}

func createOrder(engine *order.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID int64               `json:"user_id" binding:"required,min=1"`
			Items  []order.ItemRequest `json:"items" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		details, err := engine.CreateOrder(c.Request.Context(), req.UserID, req.Items)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": details})
	}
}

func getOrder(engine *order.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "order_id")
		if !ok {
			return
		}
		details, err := engine.GetOrderDetails(c.Request.Context(), id)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": details})
	}
}

func validateOrder(engine *order.Engine) gin.HandlerFunc {
	return transition(engine.ValidateOrder)
}

func confirmOrder(engine *order.Engine) gin.HandlerFunc {
	return transition(engine.ConfirmOrder)
}

func cancelOrder(engine *order.Engine) gin.HandlerFunc {
	return transition(engine.CancelOrder)
}

// transition wraps the three status-moving operations that share a signature.
func transition(op func(ctx context.Context, orderID uint) (*order.OrderDetails, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "order_id")
		if !ok {
			return
		}
		details, err := op(c.Request.Context(), id)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": details})
	}
}

func editOrderItem(engine *order.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := uintParam(c, "order_id")
		if !ok {
			return
		}
		productID, ok := uintParam(c, "product_id")
		if !ok {
			return
		}
		var req struct {
			Quantity int `json:"quantity" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		details, err := engine.EditOrderItem(c.Request.Context(), orderID, productID, req.Quantity)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": details})
	}
}

func deleteOrderItem(engine *order.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := uintParam(c, "order_id")
		if !ok {
			return
		}
		productID, ok := uintParam(c, "product_id")
		if !ok {
			return
		}
		details, err := engine.DeleteOrderItem(c.Request.Context(), orderID, productID)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": details})
	}
}

func getUserOrders(engine *order.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid user_id"})
			return
		}
		// Bounds are enforced here; the query service trusts them.
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "page must be >= 1"})
			return
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "10"))
		if err != nil || pageSize < 1 || pageSize > 50 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "page_size must be between 1 and 50"})
			return
		}
		pageData, err := engine.GetUserOrders(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			renderEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pageData})
	}
}

func pageParams(c *gin.Context, defLimit int) (limit, offset int) {
	limit = defLimit
	if v, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defLimit))); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
