package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/events"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/middleware"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/store"
)

type OrderHandler struct {
	db       *sql.DB
	producer sarama.SyncProducer
	pricing  models.PricingConfig
	topic    string
	logger   *zap.Logger
}

func NewOrderHandler(db *sql.DB, producer sarama.SyncProducer, pricing models.PricingConfig, topic string, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{db: db, producer: producer, pricing: pricing, topic: topic, logger: logger}
}

type orderItemRequest struct {
	Product  int64 `json:"product" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1"`
}

type createOrderRequest struct {
	OrderItems      []orderItemRequest     `json:"orderItems" binding:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress" binding:"required"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" binding:"required"`
	Notes           string                 `json:"notes"`
}

// CreateOrder places an order: stock is reserved and all prices are computed
// server-side from current catalog prices, never from the client.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "No order items")
		return
	}
	if !req.PaymentMethod.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid payment method")
		return
	}

	in := store.CreateOrderInput{
		UserID:          middleware.UserID(c),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, it := range req.OrderItems {
		in.Items = append(in.Items, store.OrderItemInput{ProductID: it.Product, Quantity: it.Quantity})
	}

	order, err := store.CreateOrder(c.Request.Context(), h.db, h.pricing, in)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.publish(c.Request.Context(), events.Event{
		EventType: events.TypeOrderCreated,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    order.TotalPrice,
		Status:    string(order.Status),
	})

	respondData(c, http.StatusCreated, order)
}

// MyOrders lists the authenticated user's own orders, newest first.
func (h *OrderHandler) MyOrders(c *gin.Context) {
	orders, err := store.ListOrdersByUser(c.Request.Context(), h.db, middleware.UserID(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(orders), "data": orders})
}

// GetOrder returns one order. Owners see their own; admins see any.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(c.Request.Context(), h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if order.UserID != middleware.UserID(c) && !middleware.IsAdmin(c) {
		respondError(c, http.StatusUnauthorized, "Not authorized to access this order")
		return
	}
	respondData(c, http.StatusOK, order)
}

// ListOrders is the admin listing, filterable by status and date range.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	f := store.OrderFilter{}
	if s := c.Query("status"); s != "" {
		status := models.OrderStatus(s)
		if !status.Valid() {
			respondError(c, http.StatusBadRequest, errInvalidStatus.Error())
			return
		}
		f.Status = status
	}
	start, end, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	f.StartDate = start
	f.EndDate = end
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	orders, pagination, err := store.ListOrders(c.Request.Context(), h.db, f)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(orders),
		"pagination": pagination,
		"data":       orders,
	})
}

type updateStatusRequest struct {
	Status         models.OrderStatus `json:"status" binding:"required"`
	TrackingNumber string             `json:"trackingNumber"`
}

// UpdateStatus moves an order along its lifecycle. Illegal transitions are
// rejected before touching the row.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Status is required")
		return
	}
	if !req.Status.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid order status")
		return
	}

	order, err := store.UpdateOrderStatus(c.Request.Context(), h.db, id, req.Status, req.TrackingNumber)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// Deliver marks an order delivered, stamping the delivery time.
func (h *OrderHandler) Deliver(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.MarkOrderDelivered(c.Request.Context(), h.db, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

func (h *OrderHandler) publish(ctx context.Context, event events.Event) {
	if h.producer == nil {
		return
	}
	if err := events.Publish(ctx, h.producer, h.topic, event, h.logger); err != nil {
		h.logger.Error("Failed to publish event", zap.Error(err), zap.String("event_type", event.EventType))
	}
}
