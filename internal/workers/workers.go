// Package workers projects order lifecycle events into the ClickHouse fact
// tables.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/internal/orders"
	"fulfillment/internal/rabbitmq"
	"fulfillment/models"

	"github.com/google/uuid"
)

const (
	factCreate = "create"
	factUpdate = "update"
	factCancel = "cancel"
)

type Source interface {
	ConsumeQueue(ctx context.Context, queue string, handler rabbitmq.Handler) error
}

type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type OrderFacts interface {
	HasOrderDelta(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error)
	InsertOrderDelta(ctx context.Context, d models.OrderDelta) error
}

type LineItemFacts interface {
	HasLineItemDeltas(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error)
	InsertLineItemDeltas(ctx context.Context, deltas []models.LineItemDelta) error
}

// factType maps an order event onto the fact stream vocabulary.
func factType(event string) (string, error) {
	switch event {
	case models.EventOrderCreated:
		return factCreate, nil
	case models.EventOrderCancelled:
		return factCancel, nil
	case models.EventOrderStatusChanged, models.EventOrderUpdated:
		return factUpdate, nil
	default:
		return "", rabbitmq.Permanent(fmt.Errorf("unknown event type: %s", event))
	}
}

// sign is the direction a fact type moves the running totals.
func sign(fact string) int {
	switch fact {
	case factCreate:
		return 1
	case factCancel:
		return -1
	default:
		return 0
	}
}

type loader struct {
	orders     OrderReader
	maxRetries int
	retryDelay time.Duration
}

// load retries transient read errors with doubling back-off. A missing order
// is permanent.
func (l loader) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	delay := l.retryDelay
	var lastErr error
	for i := 0; i < l.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		order, err := l.orders.Get(ctx, id)
		if err == nil {
			return order, nil
		}
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, rabbitmq.Permanent(fmt.Errorf("order %s: %w", id, err))
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to load order %s after %d retries: %w", id, l.maxRetries, lastErr)
}

func dateKey(order *models.Order, loc *time.Location) string {
	return analytics.BucketKey(order.CreatedAt, loc, analytics.Day)
}
