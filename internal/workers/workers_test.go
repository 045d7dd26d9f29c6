package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"fulfillment/internal/memstore"
	"fulfillment/internal/rabbitmq"
	"fulfillment/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var eventTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeFacts struct {
	mu        sync.Mutex
	orders    []models.OrderDelta
	lineItems []models.LineItemDelta
	failWrite error
}

func (f *fakeFacts) HasOrderDelta(_ context.Context, id uuid.UUID, eventType string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.orders {
		if d.OrderID == id && d.EventType == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFacts) InsertOrderDelta(_ context.Context, d models.OrderDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	f.orders = append(f.orders, d)
	return nil
}

func (f *fakeFacts) HasLineItemDeltas(_ context.Context, id uuid.UUID, eventType string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.lineItems {
		if d.OrderID == id && d.EventType == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFacts) InsertLineItemDeltas(_ context.Context, deltas []models.LineItemDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	f.lineItems = append(f.lineItems, deltas...)
	return nil
}

// flakyOrders fails the first n reads.
type flakyOrders struct {
	OrderReader
	failures int
	calls    int
}

func (f *flakyOrders) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.OrderReader.Get(ctx, id)
}

func seedOrder(store *memstore.Store) models.Order {
	id := uuid.New()
	order := models.Order{
		ID:          id,
		RequestKey:  id.String(),
		CustomerID:  uuid.New(),
		OrderNumber: 7,
		Items: []models.OrderItem{
			{ProductID: uuid.New(), Quantity: 2, Price: decimal.RequireFromString("12.50")},
			{ProductID: uuid.New(), Quantity: 1, Price: decimal.NewFromInt(5)},
		},
		OrderStatus: models.OrderProcessing,
		TotalPrice:  decimal.NewFromInt(30),
		// 23:30 UTC is already the next day in Cairo.
		CreatedAt: time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC),
	}
	store.PutOrder(order)
	return order
}

func body(t *testing.T, event string, order models.Order) []byte {
	t.Helper()
	b, err := json.Marshal(models.OrderEvent{
		Event:       event,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.OrderStatus,
		OccurredAt:  eventTime,
	})
	require.NoError(t, err)
	return b
}

func cairo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)
	return loc
}

func newOrderWorker(t *testing.T, facts *fakeFacts, orders OrderReader) *OrderWorker {
	w := NewOrderWorker(nil, facts, orders, "orders", cairo(t), zap.NewNop())
	w.loader.retryDelay = time.Millisecond
	w.now = func() time.Time { return eventTime }
	return w
}

func newLineItemWorker(t *testing.T, facts *fakeFacts, orders OrderReader) *LineItemWorker {
	w := NewLineItemWorker(nil, facts, orders, "line_items", cairo(t), zap.NewNop())
	w.loader.retryDelay = time.Millisecond
	w.now = func() time.Time { return eventTime }
	return w
}

func TestOrderWorkerProjectsLifecycle(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)
	facts := &fakeFacts{}
	w := newOrderWorker(t, facts, store)
	ctx := context.Background()

	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCreated, order)))
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderStatusChanged, order)))
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCancelled, order)))

	require.Len(t, facts.orders, 3)
	created, updated, cancelled := facts.orders[0], facts.orders[1], facts.orders[2]

	assert.Equal(t, "create", created.EventType)
	assert.Equal(t, "2026-03-10", created.DateKey)
	assert.Equal(t, order.CustomerID, created.CustomerKey)
	assert.Equal(t, int64(7), created.OrderNumber)
	assert.InDelta(t, 30.0, created.DeltaRevenue, 1e-9)
	assert.Equal(t, int32(1), created.DeltaOrders)
	assert.Equal(t, eventTime, created.EventTime)

	assert.Equal(t, "update", updated.EventType)
	assert.Zero(t, updated.DeltaRevenue)
	assert.Zero(t, updated.DeltaOrders)

	assert.Equal(t, "cancel", cancelled.EventType)
	assert.Equal(t, created.DateKey, cancelled.DateKey)
	assert.InDelta(t, -30.0, cancelled.DeltaRevenue, 1e-9)
	assert.Equal(t, int32(-1), cancelled.DeltaOrders)

	var revenue float64
	var count int32
	for _, d := range facts.orders {
		revenue += d.DeltaRevenue
		count += d.DeltaOrders
	}
	assert.InDelta(t, 0, revenue, 1e-9)
	assert.Zero(t, count)
}

func TestOrderWorkerSkipsRedelivery(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)
	facts := &fakeFacts{}
	w := newOrderWorker(t, facts, store)
	msg := body(t, models.EventOrderCreated, order)

	require.NoError(t, w.handleMessage(context.Background(), msg))
	require.NoError(t, w.handleMessage(context.Background(), msg))
	assert.Len(t, facts.orders, 1)
}

func TestOrderWorkerErrors(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)
	ctx := context.Background()

	t.Run("malformed body is permanent", func(t *testing.T) {
		err := newOrderWorker(t, &fakeFacts{}, store).handleMessage(ctx, []byte("nope"))
		require.Error(t, err)
		assert.True(t, rabbitmq.IsPermanent(err))
	})

	t.Run("unknown event is permanent", func(t *testing.T) {
		err := newOrderWorker(t, &fakeFacts{}, store).handleMessage(ctx, body(t, "archived", order))
		require.Error(t, err)
		assert.True(t, rabbitmq.IsPermanent(err))
	})

	t.Run("missing order is permanent", func(t *testing.T) {
		ghost := order
		ghost.ID = uuid.New()
		err := newOrderWorker(t, &fakeFacts{}, store).handleMessage(ctx, body(t, models.EventOrderCreated, ghost))
		require.Error(t, err)
		assert.True(t, rabbitmq.IsPermanent(err))
	})

	t.Run("write failure is retried by the broker", func(t *testing.T) {
		facts := &fakeFacts{failWrite: errors.New("clickhouse down")}
		err := newOrderWorker(t, facts, store).handleMessage(ctx, body(t, models.EventOrderCreated, order))
		require.Error(t, err)
		assert.False(t, rabbitmq.IsPermanent(err))
	})
}

func TestLoaderRetriesTransientErrors(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)

	reader := &flakyOrders{OrderReader: store, failures: 2}
	facts := &fakeFacts{}
	require.NoError(t, newOrderWorker(t, facts, reader).handleMessage(context.Background(), body(t, models.EventOrderCreated, order)))
	assert.Equal(t, 3, reader.calls)
	assert.Len(t, facts.orders, 1)

	reader = &flakyOrders{OrderReader: store, failures: 3}
	err := newOrderWorker(t, &fakeFacts{}, reader).handleMessage(context.Background(), body(t, models.EventOrderCreated, order))
	require.Error(t, err)
	assert.False(t, rabbitmq.IsPermanent(err))
	assert.Contains(t, err.Error(), "after 3 retries")
}

func TestLineItemWorker(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)
	facts := &fakeFacts{}
	w := newLineItemWorker(t, facts, store)
	ctx := context.Background()

	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCreated, order)))
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCreated, order)))
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderUpdated, order)))
	require.Len(t, facts.lineItems, 2)

	first := facts.lineItems[0]
	assert.Equal(t, order.Items[0].ProductID, first.ProductKey)
	assert.Equal(t, "2026-03-10", first.DateKey)
	assert.InDelta(t, 25.0, first.DeltaRevenue, 1e-9)
	assert.Equal(t, int64(2), first.DeltaSold)

	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCancelled, order)))
	require.Len(t, facts.lineItems, 4)

	sold := map[uuid.UUID]int64{}
	for _, d := range facts.lineItems {
		sold[d.ProductKey] += d.DeltaSold
	}
	for _, it := range order.Items {
		assert.Zero(t, sold[it.ProductID])
	}
	assert.Equal(t, int64(-1), facts.lineItems[3].DeltaSold)
	assert.Equal(t, "cancel", facts.lineItems[3].EventType)
}

func TestLineItemWorkerKeepsLargeQuantities(t *testing.T) {
	store := memstore.New()
	order := seedOrder(store)
	order.ID = uuid.New()
	order.RequestKey = order.ID.String()
	order.Items = []models.OrderItem{{ProductID: uuid.New(), Quantity: 5_000_000_000, Price: decimal.NewFromInt(1)}}
	store.PutOrder(order)

	facts := &fakeFacts{}
	w := newLineItemWorker(t, facts, store)
	ctx := context.Background()
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCreated, order)))
	require.NoError(t, w.handleMessage(ctx, body(t, models.EventOrderCancelled, order)))

	require.Len(t, facts.lineItems, 2)
	assert.Equal(t, int64(5_000_000_000), facts.lineItems[0].DeltaSold)
	assert.Equal(t, int64(-5_000_000_000), facts.lineItems[1].DeltaSold)
}

func TestFactType(t *testing.T) {
	tests := []struct {
		event string
		want  string
		sign  int
	}{
		{models.EventOrderCreated, "create", 1},
		{models.EventOrderCancelled, "cancel", -1},
		{models.EventOrderStatusChanged, "update", 0},
		{models.EventOrderUpdated, "update", 0},
	}
	for _, tt := range tests {
		got, err := factType(tt.event)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.sign, sign(got))
	}
	_, err := factType("")
	assert.Error(t, err)
}
