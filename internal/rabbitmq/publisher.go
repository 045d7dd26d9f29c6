package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"fulfillment/config"
	"fulfillment/internal/orders"
	"fulfillment/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Publisher fans every order event out to the order and line item queues.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queues  []string
	logger  *zap.Logger
}

var _ orders.Publisher = (*Publisher)(nil)

func NewPublisher(cfg config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	conn, channel, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	queues := []string{cfg.OrderEventsQueue, cfg.LineItemEventsQueue}
	for _, q := range queues {
		if err := declare(channel, q); err != nil {
			channel.Close()
			conn.Close()
			return nil, err
		}
	}

	return &Publisher{
		conn:    conn,
		channel: channel,
		queues:  queues,
		logger:  logger,
	}, nil
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error {
	body, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.OrderID.String() + ":" + evt.Event,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Event,
		Headers:      headers,
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, q := range p.queues {
		if err := p.channel.PublishWithContext(ctx, "", q, false, false, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", q, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	p.logger.Debug("Order event published",
		zap.String("event", evt.Event),
		zap.Int64("order_number", evt.OrderNumber),
	)
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func encodeEvent(evt models.OrderEvent) ([]byte, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode order event: %w", err)
	}
	return body, nil
}

// DecodeOrderEvent parses a message body; malformed bodies are permanent
// failures.
func DecodeOrderEvent(body []byte) (models.OrderEvent, error) {
	var evt models.OrderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, Permanent(fmt.Errorf("failed to unmarshal order event: %w", err))
	}
	return evt, nil
}
