package domain

import (
	"github.com/shopspring/decimal"
)

// CategoryTotal is the amount one customer spent in one category.
type CategoryTotal struct {
	CustomerID string          `json:"customer_id"`
	Category   string          `json:"category"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

// TopSpender is the CategoryTotal with the largest amount in its category.
type TopSpender CategoryTotal

// CustomerRanking is a customer's total spend across all categories.
type CustomerRanking struct {
	CustomerID string          `json:"customer_id"`
	Name       string          `json:"name"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}
