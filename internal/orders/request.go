package orders

import (
	"time"

	"fulfillment/models"

	"github.com/google/uuid"
)

type CreateRequest struct {
	// RequestKey deduplicates retries of the same checkout attempt.
	RequestKey         string               `json:"requestKey" validate:"max=128"`
	CustomerID         uuid.UUID            `json:"customerId" validate:"required"`
	Items              []ItemRequest        `json:"items" validate:"dive"`
	ShippingAddress    string               `json:"shippingAddress" validate:"max=512"`
	PaymentMethod      models.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=wallet visa"`
	SimulatedCreatedAt *time.Time           `json:"simulatedCreatedAt"`
}

type ItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"gt=0"`
}
