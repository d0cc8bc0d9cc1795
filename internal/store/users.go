package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

// GetUser loads the account record backing an authenticated user id. The
// payment core only reads users; account management lives elsewhere.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx,
		"SELECT id, name, email, role, created_at FROM users WHERE id = $1",
		id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
