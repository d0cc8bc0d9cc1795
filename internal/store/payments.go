package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

var (
	// ErrPaymentNotSettleable: completion/failure is only legal while the
	// payment is still pending or processing.
	ErrPaymentNotSettleable = errors.New("payment is not awaiting settlement")
	// ErrPaymentNotRefundable: refunds only apply to completed payments.
	ErrPaymentNotRefundable = errors.New("payment must be completed to process refund")
	// ErrRefundExceedsAmount guards against refunding more than was charged.
	ErrRefundExceedsAmount = errors.New("refund amount cannot exceed payment amount")
)

// NewTransactionID mints the opaque, globally-unique transaction identifier.
// Generated exactly once, at first persistence; callers must treat the format
// as opaque.
func NewTransactionID() string {
	return "TXN_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// CreatePending persists a new payment in processing status, assigning its
// transaction id. The card summary is all that is stored; the full number
// and CVV never reach this layer.
func CreatePending(ctx context.Context, db *sql.DB, p *models.Payment) error {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	p.Status = models.PaymentStatusProcessing
	p.TransactionID = NewTransactionID()

	err := db.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, user_id, amount, currency, payment_method,
		                       card_last4, card_brand, card_expiry_month, card_expiry_year,
		                       status, transaction_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		p.OrderID, p.UserID, p.Amount, p.Currency, p.PaymentMethod,
		p.Card.Last4, p.Card.Brand, p.Card.ExpiryMonth, p.Card.ExpiryYear,
		p.Status, p.TransactionID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pending payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, order_id, user_id, amount, currency, payment_method,
	card_last4, card_brand, card_expiry_month, card_expiry_year,
	status, transaction_id, failure_reason, processed_at, refunded_at, refund_amount,
	created_at, updated_at`

func scanPayment(row interface {
	Scan(dest ...interface{}) error
}) (*models.Payment, error) {
	p := &models.Payment{}
	var (
		failureReason           sql.NullString
		processedAt, refundedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Currency, &p.PaymentMethod,
		&p.Card.Last4, &p.Card.Brand, &p.Card.ExpiryMonth, &p.Card.ExpiryYear,
		&p.Status, &p.TransactionID, &failureReason, &processedAt, &refundedAt, &p.RefundAmount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.FailureReason = failureReason.String
	if processedAt.Valid {
		p.ProcessedAt = &processedAt.Time
	}
	if refundedAt.Valid {
		p.RefundedAt = &refundedAt.Time
	}
	return p, nil
}

func GetPayment(ctx context.Context, db *sql.DB, id int64) (*models.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetPaymentByOrder returns the most recent payment attempt for an order.
// Earlier failed attempts are retained as history.
func GetPaymentByOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	return p, nil
}

// MarkPaymentCompleted settles a charge inside the dual-write transaction.
// The status predicate doubles as the state-machine guard: zero rows means
// the payment was not pending/processing.
func MarkPaymentCompleted(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $2, processed_at = $3, updated_at = NOW()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, models.PaymentStatusCompleted, at,
		models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	return requireSettleable(res)
}

// MarkPaymentFailed records a declined charge. The order is left untouched.
func MarkPaymentFailed(ctx context.Context, db *sql.DB, id int64, reason string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE payments SET status = $2, failure_reason = $3, processed_at = $4, updated_at = NOW()
		 WHERE id = $1 AND status IN ($5, $6)`,
		id, models.PaymentStatusFailed, reason, at,
		models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return requireSettleable(res)
}

func requireSettleable(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle payment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPaymentNotSettleable
	}
	return nil
}

// MarkPaymentRefunded moves a completed payment to refunded. The note lands
// in failure_reason, which doubles as the refund note. The WHERE clause
// enforces the completed-only rule atomically.
func MarkPaymentRefunded(ctx context.Context, db *sql.DB, id int64, amount decimal.Decimal, note string, at time.Time) error {
	if note == "" {
		note = "Customer request"
	}
	res, err := db.ExecContext(ctx,
		`UPDATE payments SET status = $2, refund_amount = $3, refunded_at = $4, failure_reason = $5, updated_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, models.PaymentStatusRefunded, amount, at, note, models.PaymentStatusCompleted)
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark payment refunded rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPaymentNotRefundable
	}
	return nil
}

type PaymentFilter struct {
	Status    models.PaymentStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

func (f PaymentFilter) whereClause() (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if f.StartDate != nil && f.EndDate != nil {
		args = append(args, *f.StartDate)
		where += fmt.Sprintf(" AND p.created_at >= $%d", len(args))
		args = append(args, *f.EndDate)
		where += fmt.Sprintf(" AND p.created_at <= $%d", len(args))
	}
	return where, args
}

// ListPayments is the admin view: payments joined with user identity and an
// order line summary, newest first, offset paginated.
func ListPayments(ctx context.Context, db *sql.DB, f PaymentFilter) ([]models.AdminPayment, Pagination, error) {
	page, limit := NormalizePageLimit(f.Page, f.Limit)
	where, args := f.whereClause()

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments p"+where, args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("count payments: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := adminPaymentQuery + where +
		fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	payments, err := collectAdminPayments(ctx, db, query, args)
	if err != nil {
		return nil, Pagination{}, err
	}
	return payments, NewPagination(page, limit, total), nil
}

// ExportPayments returns the full filtered admin view without pagination,
// for the CSV export endpoint.
func ExportPayments(ctx context.Context, db *sql.DB, f PaymentFilter) ([]models.AdminPayment, error) {
	where, args := f.whereClause()
	return collectAdminPayments(ctx, db, adminPaymentQuery+where+" ORDER BY p.created_at DESC", args)
}

const adminPaymentQuery = `SELECT p.id, p.order_id, p.user_id, p.amount, p.currency, p.payment_method,
	p.card_last4, p.card_brand, p.card_expiry_month, p.card_expiry_year,
	p.status, p.transaction_id, p.failure_reason, p.processed_at, p.refunded_at, p.refund_amount,
	p.created_at, p.updated_at,
	u.name, u.email, o.total_price,
	(SELECT COALESCE(SUM(oi.quantity), 0) FROM order_items oi WHERE oi.order_id = p.order_id)
	FROM payments p
	JOIN users u ON p.user_id = u.id
	JOIN orders o ON p.order_id = o.id`

func collectAdminPayments(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]models.AdminPayment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.AdminPayment
	for rows.Next() {
		var (
			ap                      models.AdminPayment
			failureReason           sql.NullString
			processedAt, refundedAt sql.NullTime
		)
		err := rows.Scan(
			&ap.ID, &ap.OrderID, &ap.UserID, &ap.Amount, &ap.Currency, &ap.PaymentMethod,
			&ap.Card.Last4, &ap.Card.Brand, &ap.Card.ExpiryMonth, &ap.Card.ExpiryYear,
			&ap.Status, &ap.TransactionID, &failureReason, &processedAt, &refundedAt, &ap.RefundAmount,
			&ap.CreatedAt, &ap.UpdatedAt,
			&ap.UserName, &ap.UserEmail, &ap.OrderTotal, &ap.OrderItems,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		ap.FailureReason = failureReason.String
		if processedAt.Valid {
			ap.ProcessedAt = &processedAt.Time
		}
		if refundedAt.Valid {
			ap.RefundedAt = &refundedAt.Time
		}
		payments = append(payments, ap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments rows: %w", err)
	}
	return payments, nil
}
