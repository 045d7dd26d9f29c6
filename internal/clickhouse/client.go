package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"fulfillment/config"
	"fulfillment/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	conn     driver.Conn
	database string
}

func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		DialTimeout:  time.Second * 30,
	}

	// Native protocol on 9000 runs without TLS; 8443 is the secure port.
	if cfg.Port == 8443 {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{
		conn:     conn,
		database: cfg.Database,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureSchema creates the fact tables when they are missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(c.database) {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ClickHouse schema: %w", err)
		}
	}
	return nil
}

func schema(database string) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.Fact_Order_Delta (
				order_id      UUID,
				order_number  Int64,
				date_key      String,
				customer_key  UUID,
				status        LowCardinality(String),
				delta_revenue Float64,
				delta_orders  Int32,
				event_type    LowCardinality(String),
				event_time    DateTime64(3, 'UTC')
			) ENGINE = MergeTree
			ORDER BY (date_key, order_id, event_time)
		`, database),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.Fact_Line_Item_Delta (
				order_id      UUID,
				product_key   UUID,
				date_key      String,
				delta_revenue Float64,
				delta_sold    Int64,
				event_type    LowCardinality(String),
				event_time    DateTime64(3, 'UTC')
			) ENGINE = MergeTree
			ORDER BY (date_key, product_key, order_id, event_time)
		`, database),
	}
}

func (c *Client) InsertOrderDelta(ctx context.Context, d models.OrderDelta) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.Fact_Order_Delta (
			order_id, order_number, date_key, customer_key, status,
			delta_revenue, delta_orders, event_type, event_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.database)

	return c.conn.Exec(ctx, query,
		d.OrderID,
		d.OrderNumber,
		d.DateKey,
		d.CustomerKey,
		string(d.Status),
		d.DeltaRevenue,
		d.DeltaOrders,
		d.EventType,
		d.EventTime,
	)
}

// InsertLineItemDeltas writes all rows of one order in a single batch.
func (c *Client) InsertLineItemDeltas(ctx context.Context, deltas []models.LineItemDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.Fact_Line_Item_Delta (
			order_id, product_key, date_key, delta_revenue, delta_sold, event_type, event_time
		)
	`, c.database))
	if err != nil {
		return fmt.Errorf("prepare line item batch: %w", err)
	}
	for _, d := range deltas {
		if err := batch.Append(
			d.OrderID,
			d.ProductKey,
			d.DateKey,
			d.DeltaRevenue,
			d.DeltaSold,
			d.EventType,
			d.EventTime,
		); err != nil {
			return fmt.Errorf("append line item delta: %w", err)
		}
	}
	return batch.Send()
}

// HasOrderDelta reports whether an event of this type was already projected
// for the order, so a redelivered message is not counted twice.
func (c *Client) HasOrderDelta(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error) {
	return c.exists(ctx, "Fact_Order_Delta", orderID, eventType)
}

func (c *Client) HasLineItemDeltas(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error) {
	return c.exists(ctx, "Fact_Line_Item_Delta", orderID, eventType)
}

func (c *Client) exists(ctx context.Context, table string, orderID uuid.UUID, eventType string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT count()
		FROM %s.%s
		WHERE order_id = ? AND event_type = ?
	`, c.database, table)

	var n uint64
	if err := c.conn.QueryRow(ctx, query, orderID, eventType).Scan(&n); err != nil {
		return false, fmt.Errorf("query %s: %w", table, err)
	}
	return n > 0, nil
}

// DailyRevenue sums the projected order deltas per day bucket within
// [from, to], both given as day keys.
func (c *Client) DailyRevenue(ctx context.Context, from, to string) ([]models.RevenueBucket, error) {
	query := fmt.Sprintf(`
		SELECT date_key, sum(delta_revenue) AS total
		FROM %s.Fact_Order_Delta
		WHERE date_key >= ? AND date_key <= ?
		GROUP BY date_key
		HAVING sum(delta_orders) != 0 OR total != 0
		ORDER BY date_key
	`, c.database)

	rows, err := c.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily revenue: %w", err)
	}
	defer rows.Close()

	out := []models.RevenueBucket{}
	for rows.Next() {
		var (
			key   string
			total float64
		)
		if err := rows.Scan(&key, &total); err != nil {
			return nil, err
		}
		out = append(out, models.RevenueBucket{Bucket: key, Total: decimal.NewFromFloat(total).Round(2)})
	}
	return out, rows.Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}
