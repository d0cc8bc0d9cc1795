package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama/mocks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/puzpuzpugazh/ecommerce-platform/internal/gateway"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/middleware"
	"github.com/puzpuzpugazh/ecommerce-platform/internal/models"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

type testServer struct {
	router   *gin.Engine
	mock     sqlmock.Sqlmock
	producer *mocks.SyncProducer
	db       *sql.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	producer := mocks.NewSyncProducer(t, nil)
	logger := zaptest.NewLogger(t)
	sim := gateway.New(gateway.WithRand(rand.New(rand.NewSource(1))), gateway.WithSleep(noSleep))

	ph := NewPaymentHandler(db, sim, producer, nil, "order_events", logger)
	oh := NewOrderHandler(db, producer, models.DefaultPricing(), "order_events", logger)

	r := gin.New()
	RegisterRoutes(r, ph, oh, testSecret)

	return &testServer{router: r, mock: mock, producer: producer, db: db}
}

func (s *testServer) request(t *testing.T, method, path string, body interface{}, userID int64, role string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := middleware.SignToken(testSecret, userID, role, time.Hour)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

// unpaidOrderRows builds the single-row result for the order lookup used by
// the settlement tests. Owner is user 3, total 110.00.
func unpaidOrderRows(isPaid bool) *sqlmock.Rows {
	now := time.Now()
	status := "pending"
	if isPaid {
		status = "processing"
	}
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
		isPaid, nil, false, nil,
		status, "", "",
		nil, nil, nil, nil,
		now, now, "Jane Doe", "jane@example.com",
	)
}

var orderItemColumns = []string{"id", "order_id", "product_id", "name", "price", "quantity", "image"}

func (s *testServer) expectGetOrder(rows *sqlmock.Rows) {
	s.mock.ExpectQuery("SELECT (.+) FROM orders o JOIN users u").
		WillReturnRows(rows)
	s.mock.ExpectQuery("SELECT (.+) FROM order_items").
		WillReturnRows(sqlmock.NewRows(orderItemColumns).
			AddRow(1, 42, 7, "Widget", "50.00", 2, ""))
}
