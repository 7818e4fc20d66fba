package domain

import (
	"time"
)

// UploadLog records one successfully processed workbook.
type UploadLog struct {
	ID                int64     `json:"id,omitempty"`
	RunID             string    `json:"run_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Filename          string    `json:"filename"`
	CustomersRows     int       `json:"customers_row_count"`
	TransactionsRows  int       `json:"transactions_row_count"`
	ProductsRows      int       `json:"products_row_count"`
	ProcessingSeconds float64   `json:"processing_time"`
}

// ProcessingTime returns ProcessingSeconds as a duration.
func (u UploadLog) ProcessingTime() time.Duration {
	return time.Duration(u.ProcessingSeconds * float64(time.Second))
}
