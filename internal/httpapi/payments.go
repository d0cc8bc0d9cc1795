// Package httpapi holds the gin handlers for the storefront API. Settlement
// orchestration lives here: handlers validate input, call the simulated
// gateway, and drive the store layer, emitting events as side effects.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/cache"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/card"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/events"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/gateway"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/middleware"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/store"
)

type PaymentHandler struct {
	db       *sql.DB
	sim      *gateway.Simulator
	producer sarama.SyncProducer
	cache    *cache.PaymentCache
	topic    string
	logger   *zap.Logger
}

func NewPaymentHandler(db *sql.DB, sim *gateway.Simulator, producer sarama.SyncProducer, pc *cache.PaymentCache, topic string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{db: db, sim: sim, producer: producer, cache: pc, topic: topic, logger: logger}
}

type cardRequest struct {
	CardNumber     string `json:"cardNumber" binding:"required"`
	CardholderName string `json:"cardholderName" binding:"required"`
	ExpiryMonth    string `json:"expiryMonth" binding:"required"`
	ExpiryYear     string `json:"expiryYear" binding:"required"`
	CVV            string `json:"cvv" binding:"required"`
}

func (r cardRequest) input() card.Input {
	return card.Input{
		CardNumber:     r.CardNumber,
		CardholderName: r.CardholderName,
		ExpiryMonth:    r.ExpiryMonth,
		ExpiryYear:     r.ExpiryYear,
		CVV:            r.CVV,
	}
}

// ValidateCard checks a card without charging it or touching any order.
// Nothing about the card is persisted or logged.
func (h *PaymentHandler) ValidateCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "All card details are required")
		return
	}

	in := req.input()
	brand, err := card.Validate(in, time.Now())
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Card is valid",
		"cardBrand": string(brand),
		"last4":     in.Last4(),
	})
}

type processPaymentRequest struct {
	OrderID     int64       `json:"orderId" binding:"required"`
	CardDetails cardRequest `json:"cardDetails" binding:"required"`
}

// ProcessPayment runs the full settlement flow for an order: ownership and
// idempotency checks, card validation, a pending payment row, the simulated
// charge, and on approval a single transaction that marks both the payment
// completed and the order paid.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-api").Start(c.Request.Context(), "ProcessPayment")
	defer span.End()

	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Order ID and card details are required")
		return
	}
	span.SetAttributes(attribute.Int64("order.id", req.OrderID))

	order, err := store.GetOrder(ctx, h.db, req.OrderID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	userID := middleware.UserID(c)
	if order.UserID != userID {
		respondError(c, http.StatusUnauthorized, "Not authorized to access this order")
		return
	}
	// Idempotency guard: a paid order is never charged twice, and no
	// payment attempt is recorded for the duplicate request.
	if order.IsPaid {
		respondError(c, http.StatusBadRequest, "Order is already paid")
		return
	}

	in := req.CardDetails.input()
	brand, err := card.Validate(in, time.Now())
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	payment := &models.Payment{
		OrderID:       order.ID,
		UserID:        userID,
		Amount:        order.TotalPrice,
		PaymentMethod: models.PaymentMethodCreditCard,
		Card: models.CardSummary{
			Last4:       in.Last4(),
			Brand:       string(brand),
			ExpiryMonth: in.ExpiryMonth,
			ExpiryYear:  in.ExpiryYear,
		},
	}
	if err := store.CreatePending(ctx, h.db, payment); err != nil {
		h.logger.Error("Failed to create payment", zap.Error(err), zap.Int64("order_id", order.ID))
		respondError(c, http.StatusInternalServerError, "Payment processing failed")
		return
	}

	result, err := h.sim.Charge(ctx, card.Normalize(in.CardNumber), order.TotalPrice)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Payment processing failed")
		return
	}
	span.SetAttributes(attribute.Bool("payment.approved", result.Approved))

	now := time.Now()
	if result.Approved {
		paymentResult := models.PaymentResult{
			ID:           payment.TransactionID,
			Status:       string(models.PaymentStatusCompleted),
			UpdateTime:   now.Format(time.RFC3339),
			EmailAddress: order.UserEmail,
		}
		// Payment completion and order settlement commit together or
		// not at all.
		err := database.WithTransaction(ctx, h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			if err := store.MarkPaymentCompleted(ctx, tx, payment.ID, now); err != nil {
				return err
			}
			return store.MarkOrderPaid(ctx, tx, order.ID, paymentResult, now)
		})
		if err != nil {
			h.logger.Error("Failed to settle payment", zap.Error(err),
				zap.Int64("payment_id", payment.ID), zap.Int64("order_id", order.ID))
			respondStoreError(c, err)
			return
		}

		payment.Status = models.PaymentStatusCompleted
		payment.ProcessedAt = &now
		order.IsPaid = true
		order.PaidAt = &now
		order.Status = models.OrderStatusProcessing
		order.PaymentResult = &paymentResult

		middleware.RecordPaymentProcessed(string(models.PaymentStatusCompleted))
		h.cache.Invalidate(ctx, order.ID)
		h.publish(ctx, events.Event{
			EventType:     events.TypePaymentCompleted,
			OrderID:       order.ID,
			UserID:        userID,
			PaymentID:     payment.ID,
			Amount:        payment.Amount,
			Status:        string(payment.Status),
			TransactionID: payment.TransactionID,
		})
	} else {
		if err := store.MarkPaymentFailed(ctx, h.db, payment.ID, result.Message, now); err != nil {
			h.logger.Error("Failed to record declined payment", zap.Error(err),
				zap.Int64("payment_id", payment.ID))
			respondStoreError(c, err)
			return
		}
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = result.Message

		middleware.RecordPaymentProcessed(string(models.PaymentStatusFailed))
		h.publish(ctx, events.Event{
			EventType:     events.TypePaymentFailed,
			OrderID:       order.ID,
			UserID:        userID,
			PaymentID:     payment.ID,
			Amount:        payment.Amount,
			Status:        string(payment.Status),
			TransactionID: payment.TransactionID,
		})
	}

	// Declined charges are a successful API call with success=false; the
	// client distinguishes the outcome from the flag, not the status code.
	c.JSON(http.StatusOK, gin.H{
		"success":        result.Approved,
		"message":        result.Message,
		"transactionId":  payment.TransactionID,
		"paymentId":      payment.ID,
		"processingTime": result.ProcessingTime.Milliseconds(),
		"order":          order,
	})
}

// PaymentStatus returns the owner-facing summary of the latest payment
// attempt for an order. Summaries are cached with the owning user id so a
// cache hit still gets authorized.
func (h *PaymentHandler) PaymentStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	if entry, ok := h.cache.GetSummary(ctx, orderID); ok {
		if entry.UserID != userID && !middleware.IsAdmin(c) {
			respondError(c, http.StatusUnauthorized, "Not authorized to access this payment")
			return
		}
		respondData(c, http.StatusOK, entry.Summary)
		return
	}

	payment, err := store.GetPaymentByOrder(ctx, h.db, orderID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if payment.UserID != userID && !middleware.IsAdmin(c) {
		respondError(c, http.StatusUnauthorized, "Not authorized to access this payment")
		return
	}

	summary := payment.Summary()
	if err := h.cache.SetSummary(ctx, orderID, cache.Entry{UserID: payment.UserID, Summary: summary}); err != nil {
		h.logger.Warn("Failed to cache payment summary", zap.Error(err), zap.Int64("order_id", orderID))
	}
	respondData(c, http.StatusOK, summary)
}

type refundRequest struct {
	PaymentID    int64           `json:"paymentId" binding:"required"`
	RefundAmount decimal.Decimal `json:"refundAmount" binding:"required"`
	Reason       string          `json:"reason"`
}

// RefundPayment reverses a completed charge, in full or in part. The
// reversal always clears through the simulated gateway; only the completed
// state and the original amount bound what can be refunded.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-api").Start(c.Request.Context(), "RefundPayment")
	defer span.End()

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Payment ID and refund amount are required")
		return
	}
	if req.RefundAmount.LessThanOrEqual(decimal.Zero) {
		respondError(c, http.StatusBadRequest, "Refund amount must be greater than zero")
		return
	}
	span.SetAttributes(attribute.Int64("payment.id", req.PaymentID))

	payment, err := store.GetPayment(ctx, h.db, req.PaymentID)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	userID := middleware.UserID(c)
	if payment.UserID != userID && !middleware.IsAdmin(c) {
		respondError(c, http.StatusUnauthorized, "Not authorized to refund this payment")
		return
	}
	if payment.Status != models.PaymentStatusCompleted {
		respondError(c, http.StatusBadRequest, "Payment must be completed to process refund")
		return
	}
	if req.RefundAmount.GreaterThan(payment.Amount) {
		respondError(c, http.StatusBadRequest, "Refund amount cannot exceed payment amount")
		return
	}

	result, err := h.sim.Refund(ctx, req.RefundAmount)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Refund processing failed")
		return
	}
	if !result.Approved {
		respondError(c, http.StatusBadRequest, "Refund processing failed")
		return
	}

	now := time.Now()
	if err := store.MarkPaymentRefunded(ctx, h.db, payment.ID, req.RefundAmount, req.Reason, now); err != nil {
		respondStoreError(c, err)
		return
	}

	middleware.RecordRefundProcessed(string(models.PaymentStatusRefunded))
	h.cache.Invalidate(ctx, payment.OrderID)
	h.publish(ctx, events.Event{
		EventType:     events.TypePaymentRefunded,
		OrderID:       payment.OrderID,
		UserID:        payment.UserID,
		PaymentID:     payment.ID,
		Amount:        req.RefundAmount,
		Status:        string(models.PaymentStatusRefunded),
		TransactionID: payment.TransactionID,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Refund processed successfully",
		"transactionId": payment.TransactionID,
		"refundAmount":  req.RefundAmount,
	})
}

// ListPayments is the admin report: all payments joined with user and order
// context, filterable by status and date range.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	payments, pagination, err := store.ListPayments(c.Request.Context(), h.db, filter)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(payments),
		"pagination": pagination,
		"data":       payments,
	})
}

// ExportPayments streams the filtered admin report as CSV.
func (h *PaymentHandler) ExportPayments(c *gin.Context) {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	payments, err := store.ExportPayments(c.Request.Context(), h.db, filter)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="payments.csv"`)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"transaction_id", "order_id", "customer", "email", "amount", "currency",
		"status", "card_brand", "card_last4", "created_at", "processed_at"})
	for _, p := range payments {
		processedAt := ""
		if p.ProcessedAt != nil {
			processedAt = p.ProcessedAt.Format(time.RFC3339)
		}
		w.Write([]string{
			p.TransactionID,
			strconv.FormatInt(p.OrderID, 10),
			p.UserName,
			p.UserEmail,
			p.Amount.StringFixed(2),
			p.Currency,
			string(p.Status),
			p.Card.Brand,
			p.Card.Last4,
			p.CreatedAt.Format(time.RFC3339),
			processedAt,
		})
	}
	w.Flush()
}

func paymentFilterFromQuery(c *gin.Context) (store.PaymentFilter, error) {
	f := store.PaymentFilter{}
	if s := c.Query("status"); s != "" {
		status := models.PaymentStatus(s)
		if !status.Valid() {
			return f, errInvalidStatus
		}
		f.Status = status
	}
	start, end, err := dateRangeFromQuery(c)
	if err != nil {
		return f, err
	}
	f.StartDate = start
	f.EndDate = end
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	return f, nil
}

func (h *PaymentHandler) publish(ctx context.Context, event events.Event) {
	if h.producer == nil {
		return
	}
	if err := events.Publish(ctx, h.producer, h.topic, event, h.logger); err != nil {
		h.logger.Error("Failed to publish event", zap.Error(err), zap.String("event_type", event.EventType))
	}
}
