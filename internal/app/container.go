package app

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/config"
	"fulfillment/internal/analytics"
	"fulfillment/internal/clickhouse"
	"fulfillment/internal/inventory"
	"fulfillment/internal/memstore"
	"fulfillment/internal/observability"
	"fulfillment/internal/orders"
	"fulfillment/internal/postgres"
	"fulfillment/internal/rabbitmq"
	"fulfillment/internal/sequence"
	"fulfillment/internal/server"
	"fulfillment/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// backend is everything the engine needs from a store driver.
type backend interface {
	inventory.Stock
	orders.Store
	orders.Catalog
	orders.Customers
	analytics.Reader
}

type Options struct {
	// Events publishes order lifecycle events to RabbitMQ.
	Events bool
}

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config    *config.Config
	logger    *zap.Logger
	store     backend
	numbers   sequence.Sequencer
	pg        *postgres.Client
	mem       *memstore.Store
	publisher orders.Publisher
	health    []server.HealthCheck
	closers   []func(context.Context) error

	orders *orders.Service
	kpis   *analytics.Aggregator
}

func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{config: cfg, publisher: orders.NopPublisher{}}

	log, err := logger.Init(cfg.Service.Name, cfg.Service.LogLevel)
	if err != nil {
		return nil, err
	}
	c.logger = log
	c.onClose(func(context.Context) error {
		_ = c.logger.Sync()
		return nil
	})

	c.setupObservability(ctx)

	if err := c.setupStore(); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	if opts.Events {
		if err := c.setupPublisher(); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
	}

	c.orders = orders.NewService(orders.Deps{
		Ledger:    inventory.NewLedger(c.store, c.logger.Named("inventory")),
		Numbers:   c.numbers,
		Store:     c.store,
		Catalog:   c.store,
		Customers: c.store,
		Events:    c.publisher,
		Logger:    c.logger.Named("orders"),
		Tracer:    otel.Tracer("fulfillment/orders"),
	})
	c.kpis = analytics.NewAggregator(c.store, cfg.Analytics.Location, c.logger.Named("analytics"),
		analytics.WithTracer(otel.Tracer("fulfillment/analytics")))

	c.logger.Info("Container ready",
		zap.String("store_driver", cfg.Service.StoreDriver),
		zap.Bool("events", opts.Events),
		zap.String("analytics_timezone", cfg.Analytics.TimeZone),
	)
	return c, nil
}

// setupObservability degrades to no tracing rather than failing startup.
func (c *Container) setupObservability(ctx context.Context) {
	shutdown, err := observability.SetupTracingSDK(ctx, c.config.Service, c.config.Tracing)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.onClose(shutdown)
}

func (c *Container) setupStore() error {
	switch c.config.Service.StoreDriver {
	case config.StoreDriverMemory:
		c.mem = memstore.New()
		c.store = c.mem
		c.numbers = c.mem
		c.logger.Warn("Using in-memory store; data is lost on exit")
	case config.StoreDriverPostgres:
		pg, err := postgres.NewClient(c.config.Postgres, c.logger.Named("postgres"))
		if err != nil {
			return err
		}
		c.pg = pg
		c.store = pg
		c.numbers = pg.Sequence(sequence.OrderNumbers)
		c.onClose(func(context.Context) error { return pg.Close() })
		c.health = append(c.health, server.HealthCheck{Name: "postgres", Check: pg.Ping})
		c.logger.Info("Connected to Postgres",
			zap.String("host", c.config.Postgres.Host),
			zap.String("database", c.config.Postgres.Database),
		)
	default:
		return fmt.Errorf("unknown store driver %q", c.config.Service.StoreDriver)
	}
	return nil
}

func (c *Container) setupPublisher() error {
	pub, err := rabbitmq.NewPublisher(c.config.RabbitMQ, c.logger.Named("rabbitmq"))
	if err != nil {
		return err
	}
	c.publisher = pub
	c.onClose(func(context.Context) error {
		pub.Close()
		return nil
	})
	c.logger.Info("Publishing order events",
		zap.String("order_queue", c.config.RabbitMQ.OrderEventsQueue),
		zap.String("line_item_queue", c.config.RabbitMQ.LineItemEventsQueue),
	)
	return nil
}

// ClickHouse connects to the fact store; the connection is closed with the
// container.
func (c *Container) ClickHouse() (*clickhouse.Client, error) {
	ch, err := clickhouse.NewClient(c.config.ClickHouse)
	if err != nil {
		return nil, err
	}
	c.onClose(func(context.Context) error { return ch.Close() })
	c.health = append(c.health, server.HealthCheck{Name: "clickhouse", Check: ch.Ping})
	c.logger.Info("Connected to ClickHouse",
		zap.String("host", c.config.ClickHouse.Host),
		zap.String("database", c.config.ClickHouse.Database),
	)
	return ch, nil
}

func (c *Container) Consumer() (*rabbitmq.Consumer, error) {
	consumer, err := rabbitmq.NewConsumer(c.config.RabbitMQ, c.logger.Named("rabbitmq"))
	if err != nil {
		return nil, err
	}
	c.onClose(func(context.Context) error {
		consumer.Close()
		return nil
	})
	return consumer, nil
}

func (c *Container) Config() *config.Config       { return c.config }
func (c *Container) Logger() *zap.Logger          { return c.logger }
func (c *Container) Orders() *orders.Service      { return c.orders }
func (c *Container) KPIs() *analytics.Aggregator  { return c.kpis }
func (c *Container) Health() []server.HealthCheck { return c.health }

// OrderReader reads committed orders from the configured store.
func (c *Container) OrderReader() orders.Store { return c.store }

// Postgres is nil unless the postgres driver is configured.
func (c *Container) Postgres() *postgres.Client { return c.pg }

// Memory is nil unless the memory driver is configured.
func (c *Container) Memory() *memstore.Store { return c.mem }

func (c *Container) onClose(fn func(context.Context) error) {
	if fn != nil {
		c.closers = append(c.closers, fn)
	}
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	c.closers = nil
	return errors.Join(errs...)
}
