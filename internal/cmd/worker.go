package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"fulfillment/config"
	"fulfillment/internal/app"
	"fulfillment/internal/workers"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Project order events into ClickHouse",
	Long: `Consume order lifecycle events from RabbitMQ and append revenue and
line item deltas to the ClickHouse fact tables. Orders are read back from
Postgres.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Service.StoreDriver != config.StoreDriverPostgres {
		return errors.New("worker needs STORE_DRIVER=postgres to read committed orders")
	}

	c, err := app.NewContainer(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer c.Close(context.Background())
	log := c.Logger()

	ch, err := c.ClickHouse()
	if err != nil {
		return err
	}
	if err := ch.EnsureSchema(ctx); err != nil {
		return err
	}

	// One channel per consumer, as prefetch is per channel.
	orderConsumer, err := c.Consumer()
	if err != nil {
		return err
	}
	lineItemConsumer, err := c.Consumer()
	if err != nil {
		return err
	}
	log.Info("Connected to RabbitMQ")

	loc := cfg.Analytics.Location
	orderWorker := workers.NewOrderWorker(orderConsumer, ch, c.OrderReader(), cfg.RabbitMQ.OrderEventsQueue, loc, log.Named("order_worker"))
	lineItemWorker := workers.NewLineItemWorker(lineItemConsumer, ch, c.OrderReader(), cfg.RabbitMQ.LineItemEventsQueue, loc, log.Named("line_item_worker"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orderWorker.Start(gctx) })
	g.Go(func() error { return lineItemWorker.Start(gctx) })
	log.Info("All workers started")

	err = g.Wait()
	if err != nil {
		log.Error("Worker stopped", zap.Error(err))
		return err
	}
	log.Info("Workers stopped gracefully")
	return nil
}
