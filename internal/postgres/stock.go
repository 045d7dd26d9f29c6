package postgres

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/inventory"
	"fulfillment/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ inventory.Stock = (*Client)(nil)

// DecrementIfAvailable is a single conditional UPDATE; the row lock taken by
// Postgres makes the check and the write one step.
func (c *Client) DecrementIfAvailable(ctx context.Context, productID uuid.UUID, qty int64) (bool, error) {
	res := c.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("decrement stock for %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	if _, err := c.Available(ctx, productID); err != nil {
		return false, err
	}
	return false, nil
}

func (c *Client) Increment(ctx context.Context, productID uuid.UUID, qty int64) error {
	res := c.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("increment stock for %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.NotFound(productID)
	}
	return nil
}

func (c *Client) Available(ctx context.Context, productID uuid.UUID) (int64, error) {
	var p models.Product
	err := c.db.WithContext(ctx).Select("id", "quantity").Where("id = ?", productID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, inventory.NotFound(productID)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock for %s: %w", productID, err)
	}
	return p.Quantity, nil
}
