package analytics

import (
	"context"
	"sort"
	"time"

	"fulfillment/models"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
	yearWindow  = 365 * 24 * time.Hour
)

type Totals struct {
	Revenue decimal.Decimal
	Count   int64
}

// Reader exposes the grouped reads the aggregator needs. Implementations
// must not mutate anything.
type Reader interface {
	OrderTotals(ctx context.Context, f Filter) (Totals, error)
	OrderStatusCounts(ctx context.Context, f Filter) ([]models.StatusCount, error)
	RevenueBuckets(ctx context.Context, f Filter, g Granularity, loc *time.Location) ([]models.RevenueBucket, error)
	CountProducts(ctx context.Context, f Filter) (int64, error)
	// CountUsers counts users with the role, or all users for an empty role.
	CountUsers(ctx context.Context, role string) (int64, error)
	// CountUsersCreatedSince reads the authoritative creation timestamp only.
	CountUsersCreatedSince(ctx context.Context, role string, since time.Time) (int64, error)
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = tracer }
}

type Aggregator struct {
	reader Reader
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

func NewAggregator(reader Reader, loc *time.Location, logger *zap.Logger, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		reader: reader,
		loc:    loc,
		now:    time.Now,
		logger: logger,
		tracer: otel.Tracer("fulfillment/analytics"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute builds the dashboard metric set. The reads run concurrently and
// independently; any failure fails the whole request.
func (a *Aggregator) Compute(ctx context.Context, q Query) (*models.KPIs, error) {
	ctx, span := a.tracer.Start(ctx, "analytics.compute")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("kpi.use_simulated", q.UseSimulated),
		attribute.String("kpi.group_by", string(q.GroupBy)),
	)

	kpis, err := a.compute(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return kpis, nil
}

func (a *Aggregator) compute(ctx context.Context, q Query) (*models.KPIs, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := q.Filter()
	granularity := ParseGranularity(string(q.GroupBy))
	now := a.now()

	var (
		totals   Totals
		kpis     models.KPIs
		statuses []models.StatusCount
		buckets  []models.RevenueBucket
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = a.reader.OrderTotals(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		statuses, err = a.reader.OrderStatusCounts(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		buckets, err = a.reader.RevenueBuckets(gctx, filter, granularity, a.loc)
		return err
	})
	g.Go(func() (err error) {
		kpis.ProductCount, err = a.reader.CountProducts(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		kpis.TotalCustomers, err = a.reader.CountUsers(gctx, models.RoleCustomer)
		return err
	})
	g.Go(func() (err error) {
		kpis.TotalUsers, err = a.reader.CountUsers(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		kpis.NewCustomers.ThisWeek, err = a.reader.CountUsersCreatedSince(gctx, models.RoleCustomer, now.Add(-weekWindow))
		return err
	})
	g.Go(func() (err error) {
		kpis.NewCustomers.ThisMonth, err = a.reader.CountUsersCreatedSince(gctx, models.RoleCustomer, now.Add(-monthWindow))
		return err
	})
	g.Go(func() (err error) {
		kpis.NewCustomers.ThisYear, err = a.reader.CountUsersCreatedSince(gctx, models.RoleCustomer, now.Add(-yearWindow))
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("Failed to compute KPIs", zap.Error(err))
		return nil, err
	}

	kpis.TotalRevenue = totals.Revenue
	kpis.OrderCount = totals.Count
	kpis.AvgOrderValue = AverageOrderValue(totals.Revenue, totals.Count)

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Status < statuses[j].Status })
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bucket < buckets[j].Bucket })
	if statuses == nil {
		statuses = []models.StatusCount{}
	}
	if buckets == nil {
		buckets = []models.RevenueBucket{}
	}
	kpis.OrderStatusDistribution = statuses
	kpis.RevenueOverTime = buckets

	a.logger.Debug("KPIs computed",
		zap.Int64("order_count", kpis.OrderCount),
		zap.String("total_revenue", kpis.TotalRevenue.String()),
		zap.String("date_field", filter.Field.String()),
		zap.String("group_by", string(granularity)),
	)
	return &kpis, nil
}

// AverageOrderValue is revenue/count, or zero when there are no orders.
func AverageOrderValue(revenue decimal.Decimal, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(count))
}
