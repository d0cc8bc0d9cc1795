package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	p := &models.Product{}
	err := db.QueryRowContext(ctx,
		"SELECT id, name, price, image, stock, created_at, updated_at FROM products WHERE id = $1",
		id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}
