package cmd

import (
	"context"
	"errors"

	"fulfillment/internal/app"

	"github.com/spf13/cobra"
)

var migrateClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres and ClickHouse schemas",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateClickHouse, "clickhouse", true, "also create the ClickHouse fact tables")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := app.NewContainer(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	pg := c.Postgres()
	if pg == nil {
		return errors.New("migrate needs STORE_DRIVER=postgres")
	}
	if err := pg.Migrate(ctx); err != nil {
		return err
	}

	if migrateClickHouse {
		ch, err := c.ClickHouse()
		if err != nil {
			return err
		}
		if err := ch.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Logger().Info("ClickHouse schema ready")
	}
	return nil
}
