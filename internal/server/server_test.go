package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/internal/inventory"
	"fulfillment/internal/memstore"
	"fulfillment/internal/orders"
	"fulfillment/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	store    *memstore.Store
	server   *Server
	customer uuid.UUID
	product  uuid.UUID
}

type stubProjection struct {
	from, to string
	buckets  []models.RevenueBucket
}

func (p *stubProjection) DailyRevenue(_ context.Context, from, to string) ([]models.RevenueBucket, error) {
	p.from, p.to = from, to
	return p.buckets, nil
}

func newEnv(t *testing.T, projection Projection, health ...HealthCheck) *env {
	t.Helper()
	store := memstore.New()
	customer := uuid.New()
	product := uuid.New()
	store.PutUser(models.User{ID: customer, Role: models.RoleCustomer, CreatedAt: testNow.Add(-48 * time.Hour)})
	store.PutProduct(models.Product{ID: product, Name: "mug", Price: decimal.NewFromInt(15), Quantity: 5})

	svc := orders.NewService(orders.Deps{
		Ledger:    inventory.NewLedger(store, zap.NewNop()),
		Numbers:   store,
		Store:     store,
		Catalog:   store,
		Customers: store,
		Now:       func() time.Time { return testNow },
	})
	agg := analytics.NewAggregator(store, time.UTC, zap.NewNop(),
		analytics.WithClock(func() time.Time { return testNow }))

	srv := NewServer(Deps{
		Orders:     svc,
		KPIs:       agg,
		Projection: projection,
		Health:     health,
		Location:   time.UTC,
		Version:    "test",
	})
	return &env{store: store, server: srv, customer: customer, product: product}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *env) createOrder(t *testing.T, qty int64) models.Order {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/orders", gin.H{
		"customerId": e.customer,
		"items":      []gin.H{{"productId": e.product, "quantity": qty}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	return order
}

func (e *env) stock(t *testing.T) int64 {
	p, ok := e.store.Product(e.product)
	require.True(t, ok)
	return p.Quantity
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := newEnv(t, nil).do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	down := HealthCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("refused") }}
	rec = newEnv(t, nil, down).do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestCreateAndGetOrder(t *testing.T) {
	e := newEnv(t, nil)
	order := e.createOrder(t, 2)

	assert.Equal(t, int64(1), order.OrderNumber)
	assert.Equal(t, models.OrderProcessing, order.OrderStatus)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, int64(3), e.stock(t))

	rec := e.do(t, http.MethodGet, "/api/orders/"+order.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, order.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2), got.Items[0].Quantity)
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     func(e *env) any
		wantCode int
	}{
		{"malformed json", func(*env) any { return "{" }, http.StatusBadRequest},
		{"bad uuid", func(*env) any { return `{"customerId":"nope"}` }, http.StatusBadRequest},
		{"empty items", func(e *env) any { return gin.H{"customerId": e.customer, "items": []gin.H{}} }, http.StatusBadRequest},
		{"unknown customer", func(e *env) any {
			return gin.H{"customerId": uuid.New(), "items": []gin.H{{"productId": e.product, "quantity": 1}}}
		}, http.StatusNotFound},
		{"unknown product", func(e *env) any {
			return gin.H{"customerId": e.customer, "items": []gin.H{{"productId": uuid.New(), "quantity": 1}}}
		}, http.StatusNotFound},
		{"out of stock", func(e *env) any {
			return gin.H{"customerId": e.customer, "items": []gin.H{{"productId": e.product, "quantity": 6}}}
		}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			rec := e.do(t, http.MethodPost, "/api/orders", tt.body(e))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, decodeError(t, rec), "error")
			assert.Equal(t, int64(5), e.stock(t))
		})
	}
}

func TestOutOfStockReportsAvailability(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/orders", gin.H{
		"customerId": e.customer,
		"items":      []gin.H{{"productId": e.product, "quantity": 9}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, e.product.String(), body["productId"])
	assert.EqualValues(t, 9, body["requested"])
	assert.EqualValues(t, 5, body["available"])
}

func TestGetOrderErrors(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/orders/42", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), nil).Code)
}

func TestSetOrderStatus(t *testing.T) {
	e := newEnv(t, nil)
	order := e.createOrder(t, 4)
	path := "/api/orders/" + order.ID.String() + "/status"

	rec := e.do(t, http.MethodPatch, path, gin.H{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPatch, path, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orderStatus":"shipped"`)

	for i := 0; i < 2; i++ {
		rec = e.do(t, http.MethodPatch, path, gin.H{"status": "cancelled"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"orderStatus":"cancelled"`)
		assert.Equal(t, int64(5), e.stock(t))
	}

	rec = e.do(t, http.MethodPatch, path, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/orders/"+uuid.NewString()+"/status", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrder(t *testing.T) {
	e := newEnv(t, nil)
	order := e.createOrder(t, 1)
	path := "/api/orders/" + order.ID.String()

	rec := e.do(t, http.MethodPatch, path, gin.H{"shippingAddress": "9 Corniche", "paymentStatus": "paid"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "9 Corniche", got.ShippingAddress)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	rec = e.do(t, http.MethodPatch, path, gin.H{"paymentStatus": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKPIs(t *testing.T) {
	e := newEnv(t, nil)
	e.createOrder(t, 1)
	e.createOrder(t, 2)

	rec := e.do(t, http.MethodGet, "/api/kpis?start=2026-03-10&end=2026-03-10&groupBy=week", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var kpis models.KPIs
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Equal(t, int64(2), kpis.OrderCount)
	assert.True(t, kpis.TotalRevenue.Equal(decimal.NewFromInt(45)))
	assert.True(t, kpis.AvgOrderValue.Equal(decimal.RequireFromString("22.5")))
	require.Len(t, kpis.RevenueOverTime, 1)
	assert.Equal(t, "2026-11", kpis.RevenueOverTime[0].Bucket)
	assert.Equal(t, int64(1), kpis.NewCustomers.ThisWeek)

	rec = e.do(t, http.MethodGet, "/api/kpis?start=2026-03-01&end=2026-03-09T23:59:59Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kpis = models.KPIs{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Equal(t, int64(0), kpis.OrderCount)
	assert.Equal(t, []models.RevenueBucket{}, kpis.RevenueOverTime)

	rec = e.do(t, http.MethodGet, "/api/kpis?end=2026-03-09T23:59:59Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kpis = models.KPIs{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Equal(t, int64(2), kpis.OrderCount)
}

func TestKPIQueryErrors(t *testing.T) {
	e := newEnv(t, nil)
	for _, q := range []string{
		"start=2026-03-10&end=2026-03-01",
		"start=yesterday",
		"end=2026-13-01",
		"useSimulated=sometimes",
	} {
		t.Run(q, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/kpis?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestParseBound(t *testing.T) {
	cairo := time.FixedZone("EET", 2*60*60)
	s := &Server{loc: cairo}

	start, err := s.parseBound("2026-03-10", false)
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)))

	end, err := s.parseBound("2026-03-10", true)
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2026, 3, 10, 21, 59, 59, 999999999, time.UTC)))

	exact, err := s.parseBound("2026-03-10T05:00:00Z", true)
	require.NoError(t, err)
	assert.True(t, exact.Equal(time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)))

	none, err := s.parseBound("", false)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDailyRevenue(t *testing.T) {
	rec := newEnv(t, nil).do(t, http.MethodGet, "/api/revenue/daily", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	projection := &stubProjection{buckets: []models.RevenueBucket{{Bucket: "2026-03-01", Total: decimal.NewFromInt(30)}}}
	e := newEnv(t, projection)

	rec = e.do(t, http.MethodGet, "/api/revenue/daily?start=2026-03-01&end=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-03-01", projection.from)
	assert.Equal(t, "2026-03-02", projection.to)
	assert.Contains(t, rec.Body.String(), `"bucket":"2026-03-01"`)

	rec = e.do(t, http.MethodGet, "/api/revenue/daily?start=2026-03-05&end=2026-03-02", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/revenue/daily?start=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, statusFor(&orders.TransitionError{From: models.OrderDelivered, To: models.OrderCancelled}))
	assert.Equal(t, http.StatusBadRequest, statusFor(analytics.ErrInvalidRange))
}
