package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentVisa   PaymentMethod = "visa"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentWallet || m == PaymentVisa
}

type Order struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	RequestKey         string          `json:"requestKey" gorm:"uniqueIndex;not null"`
	CustomerID         uuid.UUID       `json:"customerId" gorm:"type:uuid;index;not null"`
	OrderNumber        int64           `json:"orderNumber" gorm:"uniqueIndex;not null"`
	Items              []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress    string          `json:"shippingAddress"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod" gorm:"type:varchar(16);not null;default:wallet"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus" gorm:"type:varchar(16);not null;default:pending"`
	OrderStatus        OrderStatus     `json:"orderStatus" gorm:"type:varchar(16);index;not null;default:processing"`
	TotalPrice         decimal.Decimal `json:"totalPrice" gorm:"type:numeric(14,2);not null"`
	CreatedAt          time.Time       `json:"createdAt" gorm:"index"`
	SimulatedCreatedAt time.Time       `json:"simulatedCreatedAt" gorm:"index"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty"`
	StockReleasedAt    *time.Time      `json:"stockReleasedAt,omitempty"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt  `json:"-" gorm:"index"`
}

// OrderItem carries the unit price as it was when the order was placed.
type OrderItem struct {
	ID        uint            `json:"-" gorm:"primaryKey"`
	OrderID   uuid.UUID       `json:"-" gorm:"type:uuid;index;not null"`
	ProductID uuid.UUID       `json:"productId" gorm:"type:uuid;index;not null"`
	Quantity  int64           `json:"quantity" gorm:"not null;check:quantity > 0"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// SumItems returns Σ quantity × price over the items.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Counter backs the order number sequence.
type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}
