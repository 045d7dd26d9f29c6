package app

import (
	"time"

	"fulfillment/internal/memstore"
	"fulfillment/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Demo struct {
	Customer uuid.UUID
	Products []uuid.UUID
}

// SeedDemo fills an in-memory store with a small catalog and two users so
// the API can be exercised without a database.
func SeedDemo(store *memstore.Store, now time.Time, logger *zap.Logger) Demo {
	var demo Demo
	products := []models.Product{
		{Name: "Espresso beans 1kg", Price: decimal.NewFromInt(420), Quantity: 40},
		{Name: "Ceramic mug", Price: decimal.NewFromInt(150), DiscountPercentage: decimal.NewFromInt(10), Quantity: 25},
		{Name: "Pour-over kettle", Price: decimal.NewFromInt(1800), DiscountAmount: decimal.NewFromInt(200), Quantity: 5},
	}
	for _, p := range products {
		p.ID = uuid.New()
		p.CreatedAt = now
		p.SimulatedCreatedAt = now
		p.UpdatedAt = now
		store.PutProduct(p)
		demo.Products = append(demo.Products, p.ID)
		logger.Info("Seeded product",
			zap.String("product_id", p.ID.String()),
			zap.String("name", p.Name),
			zap.Int64("quantity", p.Quantity),
		)
	}

	users := []models.User{
		{Name: "Demo Customer", Email: "customer@example.com", Role: models.RoleCustomer},
		{Name: "Demo Admin", Email: "admin@example.com", Role: models.RoleAdmin},
	}
	for _, u := range users {
		u.ID = uuid.New()
		u.CreatedAt = now
		u.SimulatedCreatedAt = now
		u.UpdatedAt = now
		store.PutUser(u)
		if u.Role == models.RoleCustomer {
			demo.Customer = u.ID
		}
		logger.Info("Seeded user",
			zap.String("user_id", u.ID.String()),
			zap.String("role", u.Role),
		)
	}
	return demo
}
