package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/config"
)

// InitDB opens the Postgres pool, verifies connectivity and bootstraps the
// schema. Idempotent: safe to run on every start.
func InitDB(cfg *config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := bootstrapSchema(db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)
	return db, nil
}

func bootstrapSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10, 2) NOT NULL CHECK (price >= 0),
		image TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		payment_method VARCHAR(30) NOT NULL,
		ship_street VARCHAR(255) NOT NULL,
		ship_city VARCHAR(100) NOT NULL,
		ship_state VARCHAR(100) NOT NULL,
		ship_zip VARCHAR(20) NOT NULL,
		ship_country VARCHAR(100) NOT NULL,
		items_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
		tax_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
		shipping_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
		total_price DECIMAL(10, 2) NOT NULL DEFAULT 0,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TIMESTAMPTZ,
		is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMPTZ,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		tracking_number VARCHAR(100) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		payment_result_id VARCHAR(64),
		payment_result_status VARCHAR(20),
		payment_result_time VARCHAR(64),
		payment_result_email VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10, 2) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		image TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount DECIMAL(10, 2) NOT NULL CHECK (amount >= 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		payment_method VARCHAR(30) NOT NULL,
		card_last4 VARCHAR(4) NOT NULL,
		card_brand VARCHAR(20) NOT NULL,
		card_expiry_month VARCHAR(2) NOT NULL,
		card_expiry_year VARCHAR(4) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		transaction_id VARCHAR(64) NOT NULL UNIQUE,
		failure_reason TEXT,
		processed_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		refund_amount DECIMAL(10, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
	CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id);
	CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id);
	CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
	CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at);
	`

	_, err := db.Exec(schema)
	return err
}
