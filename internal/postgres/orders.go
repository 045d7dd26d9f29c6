package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/orders"
	"fulfillment/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	_ orders.Store     = (*Client)(nil)
	_ orders.Catalog   = (*Client)(nil)
	_ orders.Customers = (*Client)(nil)
)

// Insert writes the order and its items in one transaction.
func (c *Client) Insert(ctx context.Context, order *models.Order) error {
	err := c.db.WithContext(ctx).Create(order).Error
	if err == nil {
		return nil
	}
	return insertError(order, err, func() (bool, error) {
		return c.requestKeyTaken(ctx, order.RequestKey)
	})
}

// insertError reports ErrDuplicateRequest only when the unique violation is
// on request_key. A clash on order_number or anything else stays a
// persistence error.
func insertError(order *models.Order, err error, requestKeyTaken func() (bool, error)) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if taken, lookupErr := requestKeyTaken(); lookupErr == nil && taken {
			return orders.ErrDuplicateRequest
		}
	}
	return fmt.Errorf("insert order %d: %w", order.OrderNumber, err)
}

// requestKeyTaken includes soft-deleted rows, which still hold the index.
func (c *Client) requestKeyTaken(ctx context.Context, key string) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Unscoped().Model(&models.Order{}).Where("request_key = ?", key).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check request key: %w", err)
	}
	return n > 0, nil
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return c.findOrder(ctx, "id = ?", id)
}

func (c *Client) FindByRequestKey(ctx context.Context, key string) (*models.Order, error) {
	return c.findOrder(ctx, "request_key = ?", key)
}

func (c *Client) findOrder(ctx context.Context, cond string, arg any) (*models.Order, error) {
	var order models.Order
	err := c.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(cond, arg).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &order, nil
}

// SwapStatus only writes when the row still holds the expected status, so
// two racing transitions cannot both apply.
func (c *Client) SwapStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, change orders.StatusChange) (bool, error) {
	updates := map[string]any{
		"order_status": change.To,
		"updated_at":   change.At,
	}
	if change.DeliveredAt != nil {
		updates["delivered_at"] = *change.DeliveredAt
	}
	if change.PaymentStatus != nil {
		updates["payment_status"] = *change.PaymentStatus
	}

	res := c.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("swap order status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var n int64
	if err := c.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	if n == 0 {
		return false, orders.ErrOrderNotFound
	}
	return false, nil
}

// ReleaseStock claims the release with a conditional update on
// stock_released_at and restocks the items in the same transaction, so a
// failure rolls back the claim as well.
func (c *Client) ReleaseStock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	released := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND order_status = ? AND stock_released_at IS NULL", id, models.OrderCancelled).
			Updates(map[string]any{"stock_released_at": at, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("claim stock release: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", id).Order("id").Find(&items).Error; err != nil {
			return fmt.Errorf("load order items: %w", err)
		}
		for _, it := range items {
			err := tx.Model(&models.Product{}).
				Where("id = ?", it.ProductID).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", it.Quantity)).Error
			if err != nil {
				return fmt.Errorf("restock product %s: %w", it.ProductID, err)
			}
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (c *Client) Patch(ctx context.Context, id uuid.UUID, patch orders.Patch, at time.Time) error {
	updates := map[string]any{"updated_at": at}
	if patch.ShippingAddress != nil {
		updates["shipping_address"] = *patch.ShippingAddress
	}
	if patch.PaymentMethod != nil {
		updates["payment_method"] = *patch.PaymentMethod
	}
	if patch.PaymentStatus != nil {
		updates["payment_status"] = *patch.PaymentStatus
	}

	res := c.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("patch order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (c *Client) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	var list []models.Product
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	out := make(map[uuid.UUID]models.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (c *Client) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}
