package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

// ErrInvalidStatusTransition is returned when an admin tries to move an order
// to a status the lifecycle does not allow from its current one.
var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type OrderItemInput struct {
	ProductID int64
	Quantity  int
}

type CreateOrderInput struct {
	UserID          int64
	Items           []OrderItemInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	Notes           string
}

// CreateOrder reserves stock and persists the order in one serializable,
// retried transaction. Stock is decremented at creation time, before any
// payment: an abandoned unpaid order keeps its reservation. The decrement is
// conditional on remaining stock, so two concurrent orders cannot both take
// the last unit; a failure on any line item rolls the whole order back.
func CreateOrder(ctx context.Context, db *sql.DB, pricing models.PricingConfig, in CreateOrderInput) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		items := make([]models.OrderItem, 0, len(in.Items))

		for _, item := range in.Items {
			var (
				p     models.Product
				stock int
			)
			err := tx.QueryRowContext(ctx,
				`SELECT id, name, price, image, stock FROM products WHERE id = $1 FOR UPDATE`,
				item.ProductID,
			).Scan(&p.ID, &p.Name, &p.Price, &p.Image, &stock)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("lock product %d: %w", item.ProductID, err)
			}

			if stock < item.Quantity {
				return database.ErrInsufficientStock
			}

			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock = stock - $1, updated_at = NOW()
				 WHERE id = $2 AND stock >= $1`,
				item.Quantity, item.ProductID)
			if err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("decrement stock rows affected: %w", err)
			}
			if affected == 0 {
				return database.ErrInsufficientStock
			}

			// Snapshot name/price/image so later product edits don't rewrite
			// order history.
			items = append(items, models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Price:     p.Price,
				Quantity:  item.Quantity,
				Image:     p.Image,
			})
		}

		o := &models.Order{
			UserID:          in.UserID,
			Items:           items,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			Notes:           in.Notes,
			Status:          models.OrderStatusPending,
		}
		o.ComputeTotals(pricing)

		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, payment_method, ship_street, ship_city, ship_state, ship_zip, ship_country,
			                     items_price, tax_price, shipping_price, total_price, status, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING id, created_at, updated_at`,
			o.UserID, o.PaymentMethod,
			o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
			o.ShippingAddress.ZipCode, o.ShippingAddress.Country,
			o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice,
			o.Status, o.Notes,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, name, price, quantity, image)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				it.OrderID, it.ProductID, it.Name, it.Price, it.Quantity, it.Image,
			).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

const orderColumns = `o.id, o.user_id, o.payment_method,
	o.ship_street, o.ship_city, o.ship_state, o.ship_zip, o.ship_country,
	o.items_price, o.tax_price, o.shipping_price, o.total_price,
	o.is_paid, o.paid_at, o.is_delivered, o.delivered_at,
	o.status, o.tracking_number, o.notes,
	o.payment_result_id, o.payment_result_status, o.payment_result_time, o.payment_result_email,
	o.created_at, o.updated_at, u.name, u.email`

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*models.Order, error) {
	o := &models.Order{}
	var (
		paidAt, deliveredAt             sql.NullTime
		prID, prStatus, prTime, prEmail sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.PaymentMethod,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.ZipCode, &o.ShippingAddress.Country,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&o.IsPaid, &paidAt, &o.IsDelivered, &deliveredAt,
		&o.Status, &o.TrackingNumber, &o.Notes,
		&prID, &prStatus, &prTime, &prEmail,
		&o.CreatedAt, &o.UpdatedAt, &o.UserName, &o.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Time
	}
	if prID.Valid {
		o.PaymentResult = &models.PaymentResult{
			ID:           prID.String,
			Status:       prStatus.String,
			UpdateTime:   prTime.String,
			EmailAddress: prEmail.String,
		}
	}
	return o, nil
}

// GetOrder loads an order with its line items and owner name/email.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders o JOIN users u ON o.user_id = u.id WHERE o.id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func getOrderItems(ctx context.Context, db *sql.DB, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, price, quantity, image FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.Image); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order items rows: %w", err)
	}
	return items, nil
}

// ListOrdersByUser returns a user's own orders, newest first.
func ListOrdersByUser(ctx context.Context, db *sql.DB, userID int64) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders o JOIN users u ON o.user_id = u.id
		 WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()

	return collectOrders(ctx, db, rows)
}

type OrderFilter struct {
	Status    models.OrderStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// ListOrders is the admin listing: filtered, newest first, offset paginated.
func ListOrders(ctx context.Context, db *sql.DB, f OrderFilter) ([]models.Order, Pagination, error) {
	page, limit := NormalizePageLimit(f.Page, f.Limit)

	where := " WHERE 1=1"
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	if f.StartDate != nil && f.EndDate != nil {
		args = append(args, *f.StartDate)
		where += fmt.Sprintf(" AND o.created_at >= $%d", len(args))
		args = append(args, *f.EndDate)
		where += fmt.Sprintf(" AND o.created_at <= $%d", len(args))
	}

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o"+where, args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + orderColumns + ` FROM orders o JOIN users u ON o.user_id = u.id` + where +
		fmt.Sprintf(" ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(ctx, db, rows)
	if err != nil {
		return nil, Pagination{}, err
	}
	return orders, NewPagination(page, limit, total), nil
}

func collectOrders(ctx context.Context, db *sql.DB, rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders rows: %w", err)
	}

	for i := range orders {
		items, err := getOrderItems(ctx, db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// MarkOrderPaid flips the payment flags inside the settlement transaction,
// advancing the order to processing and recording the gateway snapshot.
func MarkOrderPaid(ctx context.Context, tx *sql.Tx, orderID int64, result models.PaymentResult, paidAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET is_paid = TRUE, paid_at = $2, status = $3,
		        payment_result_id = $4, payment_result_status = $5,
		        payment_result_time = $6, payment_result_email = $7,
		        updated_at = NOW()
		 WHERE id = $1 AND is_paid = FALSE`,
		orderID, paidAt, models.OrderStatusProcessing,
		result.ID, result.Status, result.UpdateTime, result.EmailAddress)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark order paid rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus advances the order lifecycle. Illegal moves are rejected
// against the transition table; delivering also stamps the delivery flags.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, next models.OrderStatus, trackingNumber string) (*models.Order, error) {
	var current models.OrderStatus
	err := db.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = $1", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order status: %w", err)
	}

	if current != next && !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, next)
	}

	query := `UPDATE orders SET status = $2, updated_at = NOW()`
	args := []interface{}{id, next}
	if trackingNumber != "" {
		args = append(args, trackingNumber)
		query += fmt.Sprintf(", tracking_number = $%d", len(args))
	}
	if next == models.OrderStatusDelivered {
		query += ", is_delivered = TRUE, delivered_at = NOW()"
	}
	query += " WHERE id = $1"

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return GetOrder(ctx, db, id)
}

// MarkOrderDelivered stamps the delivery flags and status in one step.
func MarkOrderDelivered(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE orders SET is_delivered = TRUE, delivered_at = NOW(), status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.OrderStatusDelivered)
	if err != nil {
		return nil, fmt.Errorf("mark order delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark order delivered rows affected: %w", err)
	}
	if affected == 0 {
		return nil, database.ErrOrderNotFound
	}
	return GetOrder(ctx, db, id)
}
