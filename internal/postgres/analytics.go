package postgres

import (
	"context"
	"fmt"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var _ analytics.Reader = (*Client)(nil)

// bucketLayouts are the to_char patterns matching analytics.BucketKey.
var bucketLayouts = map[analytics.Granularity]string{
	analytics.Day:   "YYYY-MM-DD",
	analytics.Week:  "IYYY-IW",
	analytics.Month: "YYYY-MM",
}

func dateColumn(f analytics.Filter) string {
	if f.Field == analytics.SimulatedCreatedAt {
		return "simulated_created_at"
	}
	return "created_at"
}

func inRange(f analytics.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !f.Bounded() {
			return db
		}
		col := dateColumn(f)
		return db.Where(col+" >= ? AND "+col+" <= ?", *f.Start, *f.End)
	}
}

func (c *Client) OrderTotals(ctx context.Context, f analytics.Filter) (analytics.Totals, error) {
	var row struct {
		Revenue decimal.Decimal
		Count   int64
	}
	err := c.db.WithContext(ctx).
		Model(&models.Order{}).
		Scopes(inRange(f)).
		Select("COALESCE(SUM(total_price), 0) AS revenue, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return analytics.Totals{}, fmt.Errorf("order totals: %w", err)
	}
	return analytics.Totals{Revenue: row.Revenue, Count: row.Count}, nil
}

func (c *Client) OrderStatusCounts(ctx context.Context, f analytics.Filter) ([]models.StatusCount, error) {
	var out []models.StatusCount
	err := c.db.WithContext(ctx).
		Model(&models.Order{}).
		Scopes(inRange(f)).
		Select("order_status AS status, COUNT(*) AS count").
		Group("order_status").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("order status counts: %w", err)
	}
	return out, nil
}

func (c *Client) RevenueBuckets(ctx context.Context, f analytics.Filter, g analytics.Granularity, loc *time.Location) ([]models.RevenueBucket, error) {
	layout, ok := bucketLayouts[g]
	if !ok {
		layout = bucketLayouts[analytics.Day]
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []models.RevenueBucket
	err := c.db.WithContext(ctx).
		Model(&models.Order{}).
		Scopes(inRange(f)).
		Select("to_char("+dateColumn(f)+" AT TIME ZONE ?, ?) AS bucket, SUM(total_price) AS total", loc.String(), layout).
		Group("bucket").
		Order("bucket").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("revenue buckets: %w", err)
	}
	return out, nil
}

func (c *Client) CountProducts(ctx context.Context, f analytics.Filter) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&models.Product{}).Scopes(inRange(f)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (c *Client) CountUsers(ctx context.Context, role string) (int64, error) {
	q := c.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (c *Client) CountUsersCreatedSince(ctx context.Context, role string, since time.Time) (int64, error) {
	q := c.db.WithContext(ctx).Model(&models.User{}).Where("created_at >= ?", since)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count new users: %w", err)
	}
	return n, nil
}
