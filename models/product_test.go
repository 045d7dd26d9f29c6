package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceAfterDiscount(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		amount   string
		percent  string
		expected string
	}{
		{"no discount", "100", "0", "0", "100"},
		{"flat", "100", "15", "0", "85"},
		{"percentage", "80", "0", "25", "60"},
		{"both", "200", "10", "10", "170"},
		{"clamped", "20", "15", "50", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{
				Price:              decimal.RequireFromString(tt.price),
				DiscountAmount:     decimal.RequireFromString(tt.amount),
				DiscountPercentage: decimal.RequireFromString(tt.percent),
			}
			got := p.PriceAfterDiscount()
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)
		})
	}
}

func TestSumItems(t *testing.T) {
	items := []OrderItem{
		{Quantity: 2, Price: decimal.RequireFromString("4.50")},
		{Quantity: 3, Price: decimal.RequireFromString("10")},
	}
	assert.True(t, SumItems(items).Equal(decimal.RequireFromString("39")))
	assert.True(t, SumItems(nil).IsZero())
}

func TestStatusEnums(t *testing.T) {
	assert.True(t, OrderShipped.Valid())
	assert.False(t, OrderStatus("pending").Valid())
	assert.True(t, PaymentRefunded.Valid())
	assert.False(t, PaymentStatus("void").Valid())
	assert.True(t, PaymentVisa.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
}
