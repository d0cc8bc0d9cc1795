package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/database"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

func testAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Street: "123 Main St", City: "Springfield", State: "IL",
		ZipCode: "62701", Country: "USA",
	}
}

func TestCreateOrderComputesTotalsAndReservesStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, image, stock FROM products").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "image", "stock"}).
			AddRow(7, "Widget", "19.99", "/img/widget.png", 5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$1`).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	order, err := CreateOrder(context.Background(), db, models.DefaultPricing(), CreateOrderInput{
		UserID:          3,
		Items:           []OrderItemInput{{ProductID: 7, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentMethodCreditCard,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.ID != 42 {
		t.Errorf("order ID = %d, want 42", order.ID)
	}
	// 2 x 19.99 = 39.98 items, 4.00 tax, 10 flat shipping below threshold.
	if got := order.ItemsPrice.StringFixed(2); got != "39.98" {
		t.Errorf("ItemsPrice = %s, want 39.98", got)
	}
	if got := order.TaxPrice.StringFixed(2); got != "4.00" {
		t.Errorf("TaxPrice = %s, want 4.00", got)
	}
	if got := order.ShippingPrice.StringFixed(2); got != "10.00" {
		t.Errorf("ShippingPrice = %s, want 10.00", got)
	}
	if got := order.TotalPrice.StringFixed(2); got != "53.98" {
		t.Errorf("TotalPrice = %s, want 53.98", got)
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("Status = %s, want pending", order.Status)
	}
	if order.Items[0].Name != "Widget" {
		t.Errorf("item name not snapshotted: %q", order.Items[0].Name)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, image, stock FROM products").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "image", "stock"}).
			AddRow(7, "Widget", "19.99", "", 1))
	mock.ExpectRollback()

	_, err = CreateOrder(context.Background(), db, models.DefaultPricing(), CreateOrderInput{
		UserID:          3,
		Items:           []OrderItemInput{{ProductID: 7, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentMethodCreditCard,
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The conditional decrement is the last line of defense: even if the locked
// read saw enough stock, a zero-row update must abort the order.
func TestCreateOrderDecrementRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, image, stock FROM products").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "image", "stock"}).
			AddRow(7, "Widget", "19.99", "", 5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$1`).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = CreateOrder(context.Background(), db, models.DefaultPricing(), CreateOrderInput{
		UserID:          3,
		Items:           []OrderItemInput{{ProductID: 7, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentMethodCreditCard,
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, price, image, stock FROM products").
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "image", "stock"}))
	mock.ExpectRollback()

	_, err = CreateOrder(context.Background(), db, models.DefaultPricing(), CreateOrderInput{
		UserID:          3,
		Items:           []OrderItemInput{{ProductID: 999, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentMethodCreditCard,
	})
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestMarkOrderPaidRequiresUnpaidRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET is_paid = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = MarkOrderPaid(context.Background(), tx, 42, models.PaymentResult{}, time.Now())
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func orderRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "payment_method",
		"ship_street", "ship_city", "ship_state", "ship_zip", "ship_country",
		"items_price", "tax_price", "shipping_price", "total_price",
		"is_paid", "paid_at", "is_delivered", "delivered_at",
		"status", "tracking_number", "notes",
		"payment_result_id", "payment_result_status", "payment_result_time", "payment_result_email",
		"created_at", "updated_at", "name", "email",
	}).AddRow(
		42, 3, "credit_card",
		"123 Main St", "Springfield", "IL", "62701", "USA",
		"100.00", "10.00", "0", "110.00",
		false, nil, false, nil,
		"pending", "", "",
		nil, nil, nil, nil,
		now, now, "Jane Doe", "jane@example.com",
	)
}

func TestGetOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM orders o JOIN users u").
		WithArgs(int64(42)).
		WillReturnRows(orderRows())
	mock.ExpectQuery("SELECT (.+) FROM order_items").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "price", "quantity", "image"}).
			AddRow(1, 42, 7, "Widget", "50.00", 2, ""))

	order, err := GetOrder(context.Background(), db, 42)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.UserName != "Jane Doe" {
		t.Errorf("UserName = %q", order.UserName)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", order.Items)
	}
	if !order.TotalPrice.Equal(decimal.RequireFromString("110.00")) {
		t.Errorf("TotalPrice = %s", order.TotalPrice)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM orders o JOIN users u").
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = GetOrder(context.Background(), db, 999)
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestUpdateOrderStatusRejectsIllegalTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("delivered"))

	_, err = UpdateOrderStatus(context.Background(), db, 42, models.OrderStatusProcessing, "")
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("err = %v, want ErrInvalidStatusTransition", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateOrderStatusSetsTracking(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(int64(42), models.OrderStatusShipped, "TRACK123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM orders o JOIN users u").
		WithArgs(int64(42)).
		WillReturnRows(orderRows())
	mock.ExpectQuery("SELECT (.+) FROM order_items").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "price", "quantity", "image"}))

	if _, err := UpdateOrderStatus(context.Background(), db, 42, models.OrderStatusShipped, "TRACK123"); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
