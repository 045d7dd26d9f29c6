package workers

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/rabbitmq"
	"fulfillment/models"

	"go.uber.org/zap"
)

// LineItemWorker keeps per-product sold quantities and revenue. Only
// creation and cancellation move them.
type LineItemWorker struct {
	source    Source
	facts     LineItemFacts
	loader    loader
	queueName string
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

func NewLineItemWorker(source Source, facts LineItemFacts, orders OrderReader, queueName string, loc *time.Location, logger *zap.Logger) *LineItemWorker {
	return &LineItemWorker{
		source:    source,
		facts:     facts,
		loader:    loader{orders: orders, maxRetries: 3, retryDelay: 100 * time.Millisecond},
		queueName: queueName,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *LineItemWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting line item worker", zap.String("queue", w.queueName))
	return w.source.ConsumeQueue(ctx, w.queueName, w.handleMessage)
}

func (w *LineItemWorker) handleMessage(ctx context.Context, body []byte) error {
	evt, err := rabbitmq.DecodeOrderEvent(body)
	if err != nil {
		return err
	}
	fact, err := factType(evt.Event)
	if err != nil {
		return err
	}
	if fact == factUpdate {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done, err := w.facts.HasLineItemDeltas(ctx, evt.OrderID, fact)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	order, err := w.loader.load(ctx, evt.OrderID)
	if err != nil {
		return err
	}

	s := sign(fact)
	key := dateKey(order, w.loc)
	ts := w.now()
	deltas := make([]models.LineItemDelta, 0, len(order.Items))
	for _, it := range order.Items {
		deltas = append(deltas, models.LineItemDelta{
			OrderID:      order.ID,
			ProductKey:   it.ProductID,
			DateKey:      key,
			DeltaRevenue: float64(s) * it.Subtotal().InexactFloat64(),
			DeltaSold:    int64(s) * it.Quantity,
			EventType:    fact,
			EventTime:    ts,
		})
	}
	if len(deltas) == 0 {
		w.logger.Warn("No line items found for order", zap.Int64("order_number", order.OrderNumber))
		return nil
	}

	if err := w.facts.InsertLineItemDeltas(ctx, deltas); err != nil {
		return fmt.Errorf("failed to insert line item deltas for order %d: %w", order.OrderNumber, err)
	}

	w.logger.Info("Line items synced",
		zap.Int64("order_number", order.OrderNumber),
		zap.String("event", fact),
		zap.Int("items", len(deltas)),
	)
	return nil
}
