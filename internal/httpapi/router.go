package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/middleware"
)

// RegisterRoutes wires the API surface. Everything under /api requires a
// valid token; admin-only routes additionally require the admin role.
func RegisterRoutes(r *gin.Engine, ph *PaymentHandler, oh *OrderHandler, jwtSecret string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "storefront-api"})
	})
	r.GET("/metrics", middleware.PrometheusHandler())

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(jwtSecret))
	{
		payments := api.Group("/payments")
		{
			payments.POST("/validate", ph.ValidateCard)
			payments.POST("/process", ph.ProcessPayment)
			payments.GET("/status/:orderId", ph.PaymentStatus)
			payments.POST("/refund", ph.RefundPayment)
			payments.GET("", middleware.RequireAdmin(), ph.ListPayments)
			payments.GET("/export", middleware.RequireAdmin(), ph.ExportPayments)
		}

		orders := api.Group("/orders")
		{
			orders.POST("", oh.CreateOrder)
			orders.GET("/myorders", oh.MyOrders)
			orders.GET("/:id", oh.GetOrder)
			orders.GET("", middleware.RequireAdmin(), oh.ListOrders)
			orders.PUT("/:id/status", middleware.RequireAdmin(), oh.UpdateStatus)
			orders.PUT("/:id/deliver", middleware.RequireAdmin(), oh.Deliver)
		}
	}
}
