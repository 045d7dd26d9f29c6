package postgres

import (
	"context"
	"fmt"

	"fulfillment/models"
)

// Migrate creates or updates the tables the engine owns.
func (c *Client) Migrate(ctx context.Context) error {
	err := c.db.WithContext(ctx).AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.Counter{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	c.logger.Info("Postgres schema migrated")
	return nil
}
