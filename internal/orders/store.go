package orders

import (
	"context"
	"time"

	"fulfillment/models"

	"github.com/google/uuid"
)

// Store persists orders. SwapStatus must be a compare-and-set on the current
// status so that only one caller wins a given transition.
//
// ReleaseStock returns every item of a cancelled order to stock and stamps
// StockReleasedAt as one atomic step. It reports false without touching
// stock when the order is not cancelled or already carries the stamp. Items
// whose product no longer exists are skipped.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByRequestKey(ctx context.Context, key string) (*models.Order, error)
	SwapStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, change StatusChange) (bool, error)
	ReleaseStock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Patch(ctx context.Context, id uuid.UUID, patch Patch, at time.Time) error
}

type StatusChange struct {
	To            models.OrderStatus
	At            time.Time
	DeliveredAt   *time.Time
	PaymentStatus *models.PaymentStatus
}

// Patch lists the fields that may change without touching inventory.
type Patch struct {
	ShippingAddress *string               `json:"shippingAddress"`
	PaymentMethod   *models.PaymentMethod `json:"paymentMethod"`
	PaymentStatus   *models.PaymentStatus `json:"paymentStatus"`
}

func (p Patch) IsEmpty() bool {
	return p.ShippingAddress == nil && p.PaymentMethod == nil && p.PaymentStatus == nil
}

type Catalog interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type Customers interface {
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Publisher announces committed order changes.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error
}

type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, models.OrderEvent) error { return nil }
