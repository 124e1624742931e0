package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"commerce-service/config"
	"commerce-service/internal/apperror"
	"commerce-service/internal/service"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services exposed over HTTP
type Services struct {
	Products *service.ProductService
	Carts    *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
}

// Handler contains HTTP handlers
type Handler struct {
	services      Services
	store         Pinger
	auth          config.AuthConfig
	retryAttempts int
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, store Pinger, authCfg config.AuthConfig, retryAttempts int) *Handler {
	return &Handler{
		services:      services,
		store:         store,
		auth:          authCfg,
		retryAttempts: retryAttempts,
		logger:        util.ComponentLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/availability", h.getAvailability)
		v1.GET("/products/category/:category", h.listProductsByCategory)

		admin := v1.Group("/products", requireAuth(h.auth), requireAdmin())
		admin.POST("", h.createProduct)
		admin.PUT("/:id", h.updateProduct)
		admin.DELETE("/:id", h.deleteProduct)

		cart := v1.Group("/cart", requireAuth(h.auth))
		cart.GET("", h.getCart)
		cart.POST("/items", h.addCartItem)
		cart.PUT("/items/:itemId", h.updateCartItem)
		cart.DELETE("/items/:itemId", h.removeCartItem)
		cart.DELETE("", h.clearCart)

		orders := v1.Group("/orders", requireAuth(h.auth))
		orders.POST("/checkout", h.checkout)
		orders.GET("", h.getOrderHistory)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/cancel", h.cancelOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.services.Products.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) listProductsByCategory(c *gin.Context) {
	products, err := h.services.Products.ListProducts(c.Request.Context(), c.Param("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.services.Products.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getAvailability(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	availability, err := h.services.Products.GetAvailability(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if !h.bind(c, &req) {
		return
	}

	product, err := h.services.Products.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req service.ProductRequest
	if !h.bind(c, &req) {
		return
	}

	product, err := h.services.Products.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.services.Products.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.services.Carts.GetCart(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if !h.bind(c, &req) {
		return
	}

	cart, err := h.services.Carts.AddItem(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := h.pathID(c, "itemId")
	if !ok {
		return
	}
	var req service.UpdateCartItemRequest
	if !h.bind(c, &req) {
		return
	}

	cart, err := h.services.Carts.UpdateItem(c.Request.Context(), currentUserID(c), itemID, *req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := h.pathID(c, "itemId")
	if !ok {
		return
	}

	cart, err := h.services.Carts.RemoveItem(c.Request.Context(), currentUserID(c), itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.services.Carts.ClearCart(c.Request.Context(), currentUserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// checkout places an order from the cart. Conflicts are retried a bounded
// number of times; the idempotency key makes a retried attempt safe.
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if !h.bind(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	userID := currentUserID(c)
	var order *service.OrderView
	err := retryOnConflict(c.Request.Context(), h.retryAttempts, func(ctx context.Context) error {
		var err error
		order, err = h.services.Checkout.Checkout(ctx, userID, req)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrderHistory(c *gin.Context) {
	orders, err := h.services.Orders.GetOrderHistory(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.services.Orders.GetOrder(c.Request.Context(), currentUserID(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.services.Orders.CancelOrder(c.Request.Context(), currentUserID(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperror.Newf(apperror.KindValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}
