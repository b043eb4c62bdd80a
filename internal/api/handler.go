package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"merchstore/internal/lifecycle"
	"merchstore/internal/models"
	"merchstore/internal/service"
	"merchstore/internal/store"
	"merchstore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store     *store.Store
	orders    *service.OrderService
	checkout  *service.CheckoutService
	carts     *service.CartService
	tracking  *service.TrackingService
	payments  *service.PaymentService
	fileStore service.FileStore
}

// NewHandler creates a new HTTP handler
func NewHandler(
	store *store.Store,
	orders *service.OrderService,
	checkout *service.CheckoutService,
	carts *service.CartService,
	tracking *service.TrackingService,
	payments *service.PaymentService,
	fileStore service.FileStore,
) *Handler {
	return &Handler{
		store:     store,
		orders:    orders,
		checkout:  checkout,
		carts:     carts,
		tracking:  tracking,
		payments:  payments,
		fileStore: fileStore,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payment", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/promos/:code", h.validatePromo)

		v1.GET("/carts/:email", h.getCart)
		v1.PUT("/carts/:email", h.putCart)
		v1.DELETE("/carts/:email", h.clearCart)
		v1.GET("/wishlists/:email", h.getWishlist)
		v1.PUT("/wishlists/:email", h.putWishlist)

		v1.POST("/checkout", h.createCheckout)
		v1.POST("/uploads", h.generateUploadURL)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:orderId", h.getOrder)
		v1.POST("/orders/:orderId/payment", h.continuePayment)
		v1.POST("/orders/:orderId/status", h.transitionOrder)
		v1.POST("/orders/:orderId/otp", h.generateOTP)
		v1.POST("/orders/:orderId/otp/verify", h.verifyOTP)
		v1.POST("/orders/:orderId/refund", h.requestRefund)
		v1.POST("/orders/:orderId/refund/decision", h.decideRefund)
		v1.PUT("/orders/:orderId/location", h.updateRiderLocation)
		v1.GET("/orders/:orderId/location", h.getRiderLocation)
	}
}

// renderError translates the lifecycle failure taxonomy into precise HTTP
// responses so the storefront can show an actionable message.
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.Is(err, lifecycle.ErrRefundWindowExpired):
		c.JSON(http.StatusGone, gin.H{"error": "refund window expired - no longer eligible"})
	case errors.Is(err, lifecycle.ErrRefundAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "refund already requested", "details": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidState), errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "operation not allowed in current order state", "details": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid input", "details": err.Error()})
	case errors.Is(err, lifecycle.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) validatePromo(c *gin.Context) {
	subtotal, err := strconv.ParseInt(c.DefaultQuery("subtotal", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subtotal"})
		return
	}
	promo, discount, err := h.checkout.ValidatePromo(c.Request.Context(), c.Param("code"), subtotal)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":             promo.Code,
		"discount_percent": promo.DiscountPercent,
		"discount_amount":  discount,
	})
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), c.Param("email"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) putCart(c *gin.Context) {
	var req struct {
		Items []models.CartItem `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	cart, err := h.carts.PutCart(c.Request.Context(), c.Param("email"), req.Items)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearCart(c.Request.Context(), c.Param("email")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getWishlist(c *gin.Context) {
	wl, err := h.carts.GetWishlist(c.Request.Context(), c.Param("email"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, wl)
}

func (h *Handler) putWishlist(c *gin.Context) {
	var req struct {
		ProductIDs []int64 `json:"product_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	wl, err := h.carts.PutWishlist(c.Request.Context(), c.Param("email"), req.ProductIDs)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, wl)
}

func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) generateUploadURL(c *gin.Context) {
	url, err := h.fileStore.GenerateUploadURL(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) listOrders(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}
	orders, err := h.orders.ListOrders(c.Request.Context(), email)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) continuePayment(c *gin.Context) {
	url, err := h.checkout.ContinuePayment(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_link_url": url})
}

func (h *Handler) transitionOrder(c *gin.Context) {
	var req struct {
		Status       string `json:"status" binding:"required"`
		CancelReason string `json:"cancel_reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	order, err := h.orders.Transition(c.Request.Context(), c.Param("orderId"), req.Status, req.CancelReason)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) generateOTP(c *gin.Context) {
	otp, err := h.orders.GenerateDeliveryOTP(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"otp": otp})
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req struct {
		OTP string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	verified, order, err := h.orders.VerifyDeliveryOTP(c.Request.Context(), c.Param("orderId"), req.OTP)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": verified, "order": order})
}

func (h *Handler) requestRefund(c *gin.Context) {
	var req struct {
		PhotoID       string `json:"photo_id" binding:"required"`
		Method        string `json:"method" binding:"required"`
		AccountName   string `json:"account_name" binding:"required"`
		AccountNumber string `json:"account_number" binding:"required"`
		Comment       string `json:"comment,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	order, err := h.orders.RequestRefund(c.Request.Context(), c.Param("orderId"), lifecycle.RefundRequest{
		PhotoID:       req.PhotoID,
		Method:        req.Method,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		Comment:       req.Comment,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) decideRefund(c *gin.Context) {
	var req struct {
		Decision  string `json:"decision" binding:"required"`
		AdminNote string `json:"admin_note,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	order, err := h.orders.DecideRefund(c.Request.Context(), c.Param("orderId"), req.Decision, req.AdminNote)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateRiderLocation(c *gin.Context) {
	// pointers so a legitimate 0.0 (equator, prime meridian) passes required
	var req struct {
		Lat *float64 `json:"lat" binding:"required"`
		Lng *float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}
	loc, err := h.tracking.UpdateRiderLocation(c.Request.Context(), c.Param("orderId"), *req.Lat, *req.Lng)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handler) getRiderLocation(c *gin.Context) {
	loc, err := h.tracking.GetRiderLocation(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		renderError(c, err)
		return
	}
	if loc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rider location reported"})
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handler) paymentWebhook(c *gin.Context) {
	var req struct {
		PaymentLinkID string `json:"payment_link_id" binding:"required"`
		Status        string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload", "details": err.Error()})
		return
	}
	order, err := h.payments.HandleWebhook(c.Request.Context(), req.PaymentLinkID, req.Status)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": order.OrderID, "status": order.Status})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
