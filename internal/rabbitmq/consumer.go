package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

// Handler processes one message body. Returning a Permanent error drops the
// message; any other error requeues it.
type Handler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewConsumer(cfg config.RabbitMQConfig, logger *zap.Logger) (*Consumer, error) {
	conn, channel, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("fulfillment/rabbitmq"),
	}, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// ConsumeQueue blocks until ctx is cancelled or the broker closes the
// delivery channel.
func (c *Consumer) ConsumeQueue(ctx context.Context, queueName string, handler Handler) error {
	if err := declare(c.channel, queueName); err != nil {
		return err
	}

	tag := "fulfillment-" + queueName
	msgs, err := c.channel.Consume(
		queueName,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Started consuming", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			if err := c.channel.Cancel(tag, false); err != nil {
				c.logger.Warn("Failed to cancel consumer", zap.String("queue", queueName), zap.Error(err))
			}
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.processMessage(ctx, queueName, msg, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, queueName string, msg amqp.Delivery, handler Handler) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	ctx, span := c.tracer.Start(ctx, "rabbitmq.consume "+queueName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queueName),
		),
	)
	defer span.End()

	if err := handler(ctx, msg.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		requeue := !IsPermanent(err)
		c.logger.Error("Error processing message",
			zap.String("queue", queueName),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			c.logger.Warn("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Warn("Failed to ack message", zap.Error(err))
	}
}
