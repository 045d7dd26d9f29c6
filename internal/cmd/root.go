package cmd

import (
	"context"
	"fmt"
	"os"

	"fulfillment/config"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fulfillment",
	Short: "Order fulfillment engine",
	Long: `Fulfillment places orders against a finite product inventory without
overselling, moves them through their lifecycle, and serves dashboard KPIs.

Run "serve" for the HTTP API, "worker" for the ClickHouse projection
workers and "migrate" to create the database schema.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		decimal.MarshalJSONWithoutQuotes = true
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
