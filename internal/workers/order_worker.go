package workers

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/rabbitmq"
	"fulfillment/models"

	"go.uber.org/zap"
)

type OrderWorker struct {
	source    Source
	facts     OrderFacts
	loader    loader
	queueName string
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderWorker(source Source, facts OrderFacts, orders OrderReader, queueName string, loc *time.Location, logger *zap.Logger) *OrderWorker {
	return &OrderWorker{
		source:    source,
		facts:     facts,
		loader:    loader{orders: orders, maxRetries: 3, retryDelay: 100 * time.Millisecond},
		queueName: queueName,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker", zap.String("queue", w.queueName))
	return w.source.ConsumeQueue(ctx, w.queueName, w.handleMessage)
}

func (w *OrderWorker) handleMessage(ctx context.Context, body []byte) error {
	evt, err := rabbitmq.DecodeOrderEvent(body)
	if err != nil {
		return err
	}
	fact, err := factType(evt.Event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if fact != factUpdate {
		done, err := w.facts.HasOrderDelta(ctx, evt.OrderID, fact)
		if err != nil {
			return err
		}
		if done {
			w.logger.Info("Order delta already projected",
				zap.String("order_id", evt.OrderID.String()),
				zap.String("event", fact),
			)
			return nil
		}
	}

	order, err := w.loader.load(ctx, evt.OrderID)
	if err != nil {
		return err
	}

	s := sign(fact)
	delta := models.OrderDelta{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		DateKey:      dateKey(order, w.loc),
		CustomerKey:  order.CustomerID,
		Status:       evt.Status,
		DeltaRevenue: float64(s) * order.TotalPrice.InexactFloat64(),
		DeltaOrders:  int32(s),
		EventType:    fact,
		EventTime:    w.now(),
	}
	if err := w.facts.InsertOrderDelta(ctx, delta); err != nil {
		return fmt.Errorf("failed to insert order delta: %w", err)
	}

	w.logger.Info("Order event processed",
		zap.Int64("order_number", order.OrderNumber),
		zap.String("event", fact),
		zap.Float64("delta_revenue", delta.DeltaRevenue),
	)
	return nil
}
