package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment/internal/app"
	"fulfillment/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveFlags struct {
	events     bool
	projection bool
	seedDemo   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the order and KPI HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.events, "events", true, "publish order lifecycle events to RabbitMQ")
	serveCmd.Flags().BoolVar(&serveFlags.projection, "projection", false, "serve /api/revenue/daily from ClickHouse")
	serveCmd.Flags().BoolVar(&serveFlags.seedDemo, "seed-demo", false, "seed demo products and users (memory store only)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := app.NewContainer(ctx, cfg, app.Options{Events: serveFlags.events})
	if err != nil {
		return err
	}
	defer c.Close(context.Background())
	log := c.Logger()

	if serveFlags.seedDemo {
		if c.Memory() == nil {
			return fmt.Errorf("--seed-demo needs STORE_DRIVER=memory")
		}
		app.SeedDemo(c.Memory(), time.Now(), log)
	}

	var projection server.Projection
	if serveFlags.projection {
		ch, err := c.ClickHouse()
		if err != nil {
			return err
		}
		projection = ch
	}

	srv := server.NewServer(server.Deps{
		Orders:     c.Orders(),
		KPIs:       c.KPIs(),
		Projection: projection,
		Health:     c.Health(),
		Location:   cfg.Analytics.Location,
		Logger:     log.Named("http"),
		Version:    cfg.Service.Version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.HTTP.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
		return err
	}
	return <-errCh
}
