package domain

import (
	"github.com/shopspring/decimal"
)

// TransactionRecord is one row of the Transactions sheet.
// DateSerial is the raw spreadsheet serial; Date is filled in by aggregation
// as an ISO-8601 timestamp.
type TransactionRecord struct {
	TransactionID string
	CustomerID    string
	DateSerial    float64
	Date          string
	ProductCode   string
	Amount        decimal.Decimal
}

// ProductRecord is one row of the Products sheet.
type ProductRecord struct {
	ProductCode string
	ProductName string
	Category    string
	UnitPrice   decimal.Decimal
}
