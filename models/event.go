package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "created"
	EventOrderStatusChanged = "status_changed"
	EventOrderUpdated       = "updated"
	EventOrderCancelled     = "cancelled"
)

// OrderEvent is the message payload published to RabbitMQ after an order
// change commits.
type OrderEvent struct {
	Event       string      `json:"event"` // created | status_changed | updated | cancelled
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber int64       `json:"order_number"`
	Status      OrderStatus `json:"status"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// OrderDelta is one row of the ClickHouse order fact stream.
type OrderDelta struct {
	OrderID      uuid.UUID
	OrderNumber  int64
	DateKey      string
	CustomerKey  uuid.UUID
	Status       OrderStatus
	DeltaRevenue float64
	DeltaOrders  int32
	EventType    string
	EventTime    time.Time
}

// LineItemDelta is one row of the ClickHouse line item fact stream.
type LineItemDelta struct {
	OrderID      uuid.UUID
	ProductKey   uuid.UUID
	DateKey      string
	DeltaRevenue float64
	DeltaSold    int64
	EventType    string
	EventTime    time.Time
}
