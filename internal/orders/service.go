package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/inventory"
	"fulfillment/internal/sequence"
	"fulfillment/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxStatusAttempts = 3

type Deps struct {
	Ledger    *inventory.Ledger
	Numbers   sequence.Sequencer
	Store     Store
	Catalog   Catalog
	Customers Customers
	Events    Publisher
	Logger    *zap.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Service runs the order lifecycle: reservation on create, status
// transitions, and stock release on cancellation.
type Service struct {
	ledger    *inventory.Ledger
	numbers   sequence.Sequencer
	store     Store
	catalog   Catalog
	customers Customers
	events    Publisher
	validate  *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		ledger:    d.Ledger,
		numbers:   d.Numbers,
		store:     d.Store,
		catalog:   d.Catalog,
		customers: d.Customers,
		events:    d.Events,
		validate:  validator.New(),
		logger:    d.Logger,
		tracer:    d.Tracer,
		now:       d.Now,
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("fulfillment/orders")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create reserves stock for every item, assigns the next order number and
// persists the order as processing/pending. A failure leaves inventory as it
// was. Repeating a request key returns the order created by the first call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID.String()),
		attribute.Int("order.items", len(req.Items)),
	)

	order, err := s.create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.Int64("order.number", order.OrderNumber),
	)
	return order, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	key := req.RequestKey
	if key != "" {
		existing, err := s.store.FindByRequestKey(ctx, key)
		if err == nil {
			return s.replay(existing, req)
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, fmt.Errorf("lookup request key: %w", err)
		}
	} else {
		key = uuid.NewString()
	}

	exists, err := s.customers.CustomerExists(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, req.CustomerID)
	}

	items, lines, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.ReserveAll(ctx, lines); err != nil {
		s.logger.Info("Order rejected by inventory",
			zap.String("customer_id", req.CustomerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		s.compensate(ctx, lines)
		return nil, fmt.Errorf("assign order number: %w", err)
	}

	now := s.now()
	simulated := now
	if req.SimulatedCreatedAt != nil {
		simulated = *req.SimulatedCreatedAt
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentWallet
	}

	order := &models.Order{
		ID:                 uuid.New(),
		RequestKey:         key,
		CustomerID:         req.CustomerID,
		OrderNumber:        number,
		Items:              items,
		ShippingAddress:    req.ShippingAddress,
		PaymentMethod:      method,
		PaymentStatus:      models.PaymentPending,
		OrderStatus:        models.OrderProcessing,
		TotalPrice:         models.SumItems(items),
		CreatedAt:          now,
		SimulatedCreatedAt: simulated,
		UpdatedAt:          now,
	}

	if err := s.store.Insert(ctx, order); err != nil {
		s.compensate(ctx, lines)
		if errors.Is(err, ErrDuplicateRequest) {
			// A concurrent retry with the same key committed first.
			existing, lookupErr := s.store.FindByRequestKey(ctx, key)
			if lookupErr != nil {
				return nil, fmt.Errorf("persist order: request key %q taken: %v", key, lookupErr)
			}
			return s.replay(existing, req)
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("order_number", order.OrderNumber),
		zap.String("total_price", order.TotalPrice.String()),
		zap.Int("items", len(order.Items)),
	)
	s.publish(ctx, models.EventOrderCreated, order)
	return order, nil
}

// replay answers a repeated request key with the order it first produced.
// A key reused by a different customer is rejected.
func (s *Service) replay(existing *models.Order, req CreateRequest) (*models.Order, error) {
	if existing.CustomerID != req.CustomerID {
		return nil, fmt.Errorf("%w: request key %q belongs to another customer", ErrInvalidRequest, existing.RequestKey)
	}
	s.logger.Info("Order request replayed",
		zap.String("request_key", existing.RequestKey),
		zap.Int64("order_number", existing.OrderNumber),
	)
	return existing, nil
}

// snapshotItems resolves every product and freezes its discounted price.
func (s *Service) snapshotItems(ctx context.Context, reqItems []ItemRequest) ([]models.OrderItem, []inventory.Line, error) {
	ids := make([]uuid.UUID, 0, len(reqItems))
	seen := make(map[uuid.UUID]bool, len(reqItems))
	for _, it := range reqItems {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	products, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	lines := make([]inventory.Line, 0, len(reqItems))
	for _, it := range reqItems {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, nil, inventory.NotFound(it.ProductID)
		}
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     p.PriceAfterDiscount(),
		})
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return items, lines, nil
}

func (s *Service) compensate(ctx context.Context, lines []inventory.Line) {
	if err := s.ledger.ReleaseAll(ctx, lines); err != nil {
		s.logger.Error("Failed to roll back reservation", zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.store.Get(ctx, id)
}

// SetStatus moves an order along the lifecycle. Cancelling returns every
// item to stock exactly once; cancelling again returns the order together
// with ErrAlreadyCancelled and leaves stock untouched, unless the first
// attempt failed to restock, in which case the repeat completes it.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.set_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.status", string(to)),
	)

	order, err := s.setStatus(ctx, id, to)
	if err != nil && !errors.Is(err, ErrAlreadyCancelled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return order, err
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		order, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		from := order.OrderStatus
		if from == models.OrderCancelled && to == models.OrderCancelled {
			if order.StockReleasedAt != nil {
				return order, ErrAlreadyCancelled
			}
			// An earlier cancel committed the status but not the restock.
			return s.releaseCancelled(ctx, order, from)
		}
		if err := CheckTransition(from, to); err != nil {
			return nil, err
		}

		now := s.now()
		change := StatusChange{To: to, At: now}
		if to == models.OrderDelivered {
			change.DeliveredAt = &now
		}
		if to == models.OrderCancelled && order.PaymentStatus == models.PaymentPaid {
			refunded := models.PaymentRefunded
			change.PaymentStatus = &refunded
		}

		applied, err := s.store.SwapStatus(ctx, id, from, change)
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
		if !applied {
			s.logger.Debug("Order status moved underneath, retrying",
				zap.String("order_id", id.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		order.OrderStatus = to
		order.UpdatedAt = now
		if change.DeliveredAt != nil {
			order.DeliveredAt = change.DeliveredAt
		}
		if change.PaymentStatus != nil {
			order.PaymentStatus = *change.PaymentStatus
		}

		if to == models.OrderCancelled {
			return s.releaseCancelled(ctx, order, from)
		}

		s.logStatusChange(order, from)
		s.publish(ctx, models.EventOrderStatusChanged, order)
		return order, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
}

// releaseCancelled restocks a cancelled order. A failed release leaves
// StockReleasedAt unset so that cancelling again finishes the job; whoever
// stamps the order announces the cancellation.
func (s *Service) releaseCancelled(ctx context.Context, order *models.Order, from models.OrderStatus) (*models.Order, error) {
	now := s.now()
	released, err := s.store.ReleaseStock(ctx, order.ID, now)
	if err != nil {
		s.logger.Error("Failed to release stock for cancelled order",
			zap.String("order_id", order.ID.String()),
			zap.Int64("order_number", order.OrderNumber),
			zap.Error(err),
		)
		return order, fmt.Errorf("release stock for cancelled order %d: %w", order.OrderNumber, err)
	}
	if !released {
		return order, ErrAlreadyCancelled
	}
	order.StockReleasedAt = &now

	s.logStatusChange(order, from)
	s.publish(ctx, models.EventOrderCancelled, order)
	return order, nil
}

func (s *Service) logStatusChange(order *models.Order, from models.OrderStatus) {
	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.Int64("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(order.OrderStatus)),
	)
}

// Update amends fields that do not affect inventory.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*models.Order, error) {
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidRequest, *patch.PaymentStatus)
	}
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, *patch.PaymentMethod)
	}
	if patch.IsEmpty() {
		return s.store.Get(ctx, id)
	}

	if err := s.store.Patch(ctx, id, patch, s.now()); err != nil {
		return nil, err
	}
	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventOrderUpdated, order)
	return order, nil
}

// publish runs after the change has committed; a broker failure is logged
// and does not undo the order change.
func (s *Service) publish(ctx context.Context, event string, order *models.Order) {
	evt := models.OrderEvent{
		Event:       event,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.OrderStatus,
		OccurredAt:  s.now(),
	}
	if err := s.events.PublishOrderEvent(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("event", event),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}
