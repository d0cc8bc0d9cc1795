package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/cache"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/config"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/events"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/gateway"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/httpapi"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/middleware"
)

const serviceName = "storefront-api"

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := middleware.InitTracing(serviceName, cfg.Jaeger.Endpoint)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	} else {
		defer shutdownTracing()
	}

	db, err := database.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis and Kafka are optional at startup; the API degrades to
	// uncached, event-less operation if either is unreachable.
	var paymentCache *cache.PaymentCache
	if rdb, err := cache.InitRedis(&cfg.Redis, logger); err != nil {
		logger.Warn("Redis unavailable, payment cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		paymentCache = cache.NewPaymentCache(rdb, cfg.Redis.TTL)
	}

	producer, err := events.InitProducer(cfg.Kafka.Broker, logger)
	if err != nil {
		logger.Warn("Kafka unavailable, event publishing disabled", zap.Error(err))
		producer = nil
	} else {
		defer producer.Close()
	}

	sim := gateway.New()
	paymentHandler := httpapi.NewPaymentHandler(db, sim, producer, paymentCache, cfg.Kafka.Topic, logger)
	orderHandler := httpapi.NewOrderHandler(db, producer, cfg.Pricing, cfg.Kafka.Topic, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.MetricsMiddleware())

	httpapi.RegisterRoutes(r, paymentHandler, orderHandler, cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
