package models

import "github.com/shopspring/decimal"

// KPIs is the dashboard metric set.
type KPIs struct {
	TotalRevenue            decimal.Decimal `json:"totalRevenue"`
	OrderCount              int64           `json:"orderCount"`
	AvgOrderValue           decimal.Decimal `json:"avgOrderValue"`
	ProductCount            int64           `json:"productCount"`
	TotalCustomers          int64           `json:"totalCustomers"`
	TotalUsers              int64           `json:"totalUsers"`
	NewCustomers            NewCustomers    `json:"newCustomers"`
	OrderStatusDistribution []StatusCount   `json:"orderStatusDistribution"`
	RevenueOverTime         []RevenueBucket `json:"revenueOverTime"`
}

type NewCustomers struct {
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
	ThisYear  int64 `json:"thisYear"`
}

type StatusCount struct {
	Status OrderStatus `json:"status"`
	Count  int64       `json:"count"`
}

type RevenueBucket struct {
	Bucket string          `json:"bucket"`
	Total  decimal.Decimal `json:"total"`
}
