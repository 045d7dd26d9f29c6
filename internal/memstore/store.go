// Package memstore keeps products, users and orders in process memory. It
// satisfies every persistence interface of the engine and is used by the
// memory store driver and by tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/internal/inventory"
	"fulfillment/internal/orders"
	"fulfillment/internal/sequence"
	"fulfillment/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*models.Product
	users    map[uuid.UUID]*models.User
	orders   map[uuid.UUID]*models.Order
	byKey    map[string]uuid.UUID
	numbers  *sequence.Memory
}

var (
	_ inventory.Stock    = (*Store)(nil)
	_ sequence.Sequencer = (*Store)(nil)
	_ orders.Store       = (*Store)(nil)
	_ orders.Catalog     = (*Store)(nil)
	_ orders.Customers   = (*Store)(nil)
	_ analytics.Reader   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products: make(map[uuid.UUID]*models.Product),
		users:    make(map[uuid.UUID]*models.User),
		orders:   make(map[uuid.UUID]*models.Order),
		byKey:    make(map[string]uuid.UUID),
		numbers:  sequence.NewMemory(0),
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// PutOrder stores an order as-is, bypassing reservation. Used for seeding
// historical data.
func (s *Store) PutOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(&o)
	s.byKey[o.RequestKey] = o.ID
}

func (s *Store) Product(id uuid.UUID) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *p, true
}

// inventory.Stock

func (s *Store) DecrementIfAvailable(_ context.Context, productID uuid.UUID, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.DeletedAt.Valid {
		return false, inventory.NotFound(productID)
	}
	if p.Quantity < qty {
		return false, nil
	}
	p.Quantity -= qty
	return true, nil
}

func (s *Store) Increment(_ context.Context, productID uuid.UUID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.DeletedAt.Valid {
		return inventory.NotFound(productID)
	}
	p.Quantity += qty
	return nil
}

func (s *Store) Available(_ context.Context, productID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok || p.DeletedAt.Valid {
		return 0, inventory.NotFound(productID)
	}
	return p.Quantity, nil
}

// sequence.Sequencer

func (s *Store) Next(ctx context.Context) (int64, error) {
	return s.numbers.Next(ctx)
}

// orders.Catalog / orders.Customers

func (s *Store) Products(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && !p.DeletedAt.Valid {
			out[id] = *p
		}
	}
	return out, nil
}

func (s *Store) CustomerExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return ok && !u.DeletedAt.Valid, nil
}

// orders.Store

func (s *Store) Insert(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byKey[order.RequestKey]; taken {
		return orders.ErrDuplicateRequest
	}
	s.orders[order.ID] = cloneOrder(order)
	s.byKey[order.RequestKey] = order.ID
	return nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) FindByRequestKey(_ context.Context, key string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *Store) SwapStatus(_ context.Context, id uuid.UUID, from models.OrderStatus, change orders.StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = change.To
	o.UpdatedAt = change.At
	if change.DeliveredAt != nil {
		at := *change.DeliveredAt
		o.DeliveredAt = &at
	}
	if change.PaymentStatus != nil {
		o.PaymentStatus = *change.PaymentStatus
	}
	return true, nil
}

func (s *Store) ReleaseStock(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if o.OrderStatus != models.OrderCancelled || o.StockReleasedAt != nil {
		return false, nil
	}
	for _, it := range o.Items {
		if p, ok := s.products[it.ProductID]; ok && !p.DeletedAt.Valid {
			p.Quantity += it.Quantity
		}
	}
	o.StockReleasedAt = &at
	o.UpdatedAt = at
	return true, nil
}

func (s *Store) Patch(_ context.Context, id uuid.UUID, patch orders.Patch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if patch.ShippingAddress != nil {
		o.ShippingAddress = *patch.ShippingAddress
	}
	if patch.PaymentMethod != nil {
		o.PaymentMethod = *patch.PaymentMethod
	}
	if patch.PaymentStatus != nil {
		o.PaymentStatus = *patch.PaymentStatus
	}
	o.UpdatedAt = at
	return nil
}

// analytics.Reader

func (s *Store) OrderTotals(_ context.Context, f analytics.Filter) (analytics.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := analytics.Totals{Revenue: decimal.Zero}
	for _, o := range s.orders {
		if f.Contains(f.Pick(o.CreatedAt, o.SimulatedCreatedAt)) {
			totals.Revenue = totals.Revenue.Add(o.TotalPrice)
			totals.Count++
		}
	}
	return totals, nil
}

func (s *Store) OrderStatusCounts(_ context.Context, f analytics.Filter) ([]models.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.OrderStatus]int64)
	for _, o := range s.orders {
		if f.Contains(f.Pick(o.CreatedAt, o.SimulatedCreatedAt)) {
			counts[o.OrderStatus]++
		}
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	return out, nil
}

func (s *Store) RevenueBuckets(_ context.Context, f analytics.Filter, g analytics.Granularity, loc *time.Location) ([]models.RevenueBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := make(map[string]decimal.Decimal)
	for _, o := range s.orders {
		ts := f.Pick(o.CreatedAt, o.SimulatedCreatedAt)
		if !f.Contains(ts) {
			continue
		}
		key := analytics.BucketKey(ts, loc, g)
		sums[key] = sums[key].Add(o.TotalPrice)
	}
	out := make([]models.RevenueBucket, 0, len(sums))
	for key, total := range sums {
		out = append(out, models.RevenueBucket{Bucket: key, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

func (s *Store) CountProducts(_ context.Context, f analytics.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, p := range s.products {
		if !p.DeletedAt.Valid && f.Contains(f.Pick(p.CreatedAt, p.SimulatedCreatedAt)) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUsers(_ context.Context, role string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if !u.DeletedAt.Valid && (role == "" || u.Role == role) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUsersCreatedSince(_ context.Context, role string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if u.DeletedAt.Valid || (role != "" && u.Role != role) {
			continue
		}
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.DeliveredAt != nil {
		at := *o.DeliveredAt
		c.DeliveredAt = &at
	}
	if o.StockReleasedAt != nil {
		at := *o.StockReleasedAt
		c.StockReleasedAt = &at
	}
	return &c
}
