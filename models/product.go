package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Product is read by the order engine for existence and price; Quantity is
// only ever changed through the inventory ledger.
type Product struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Name               string          `json:"name" gorm:"not null"`
	CategoryID         *uuid.UUID      `json:"categoryId,omitempty" gorm:"type:uuid;index"`
	Price              decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null;check:price >= 0"`
	DiscountAmount     decimal.Decimal `json:"discountAmount" gorm:"type:numeric(12,2);not null;default:0"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage" gorm:"type:numeric(5,2);not null;default:0"`
	Quantity           int64           `json:"quantity" gorm:"not null;check:quantity >= 0"`
	CreatedAt          time.Time       `json:"createdAt" gorm:"index"`
	SimulatedCreatedAt time.Time       `json:"simulatedCreatedAt" gorm:"index"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt  `json:"-" gorm:"index"`
}

// PriceAfterDiscount applies the flat and percentage discounts, clamped at zero.
func (p Product) PriceAfterDiscount() decimal.Decimal {
	pct := p.Price.Mul(p.DiscountPercentage).Div(hundred)
	price := p.Price.Sub(p.DiscountAmount).Sub(pct)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
