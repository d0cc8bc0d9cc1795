package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/store"
)

// Every response carries the {success, message?, data?} envelope the
// storefront client expects.

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// respondStoreError translates store/database sentinels to HTTP statuses:
// not-found 404, validation and illegal-state 400, anything else 500.
// Infrastructure detail never leaks to the client.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrOrderNotFound):
		respondError(c, http.StatusNotFound, "Order not found")
	case errors.Is(err, database.ErrPaymentNotFound):
		respondError(c, http.StatusNotFound, "Payment not found")
	case errors.Is(err, database.ErrProductNotFound):
		respondError(c, http.StatusNotFound, "Product not found")
	case errors.Is(err, database.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, database.ErrInsufficientStock):
		respondError(c, http.StatusBadRequest, "Insufficient stock")
	case errors.Is(err, store.ErrPaymentNotRefundable):
		respondError(c, http.StatusBadRequest, "Payment must be completed to process refund")
	case errors.Is(err, store.ErrRefundExceedsAmount):
		respondError(c, http.StatusBadRequest, "Refund amount cannot exceed payment amount")
	case errors.Is(err, store.ErrPaymentNotSettleable):
		respondError(c, http.StatusBadRequest, "Payment is not awaiting settlement")
	case errors.Is(err, store.ErrInvalidStatusTransition):
		respondError(c, http.StatusBadRequest, "Invalid status transition")
	default:
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
