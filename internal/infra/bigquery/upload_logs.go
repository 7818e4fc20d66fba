// Package bigquery is the BigQuery sink for the upload log.
package bigquery

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/customer-insights/internal/domain"
)

const uploadLogsTable = "upload_logs"

type UploadLogRow struct {
	RunID     string     `bigquery:"run_id"`    // REQUIRED
	Timestamp time.Time  `bigquery:"timestamp"` // TIMESTAMP, REQUIRED
	RunDate   civil.Date `bigquery:"run_date"`  // DATE, partition column

	Filename             string  `bigquery:"filename"`
	CustomersRowCount    int64   `bigquery:"customers_row_count"`
	TransactionsRowCount int64   `bigquery:"transactions_row_count"`
	ProductsRowCount     int64   `bigquery:"products_row_count"`
	ProcessingTime       float64 `bigquery:"processing_time"` // seconds
}

// NewUploadLogRow converts a domain entry, deriving run_date in UTC.
func NewUploadLogRow(entry domain.UploadLog) *UploadLogRow {
	ts := entry.Timestamp.UTC()
	return &UploadLogRow{
		RunID:                entry.RunID,
		Timestamp:            ts,
		RunDate:              civil.DateOf(ts),
		Filename:             entry.Filename,
		CustomersRowCount:    int64(entry.CustomersRows),
		TransactionsRowCount: int64(entry.TransactionsRows),
		ProductsRowCount:     int64(entry.ProductsRows),
		ProcessingTime:       entry.ProcessingSeconds,
	}
}

// ToDomain converts the row back to a domain entry.
func (r *UploadLogRow) ToDomain() domain.UploadLog {
	return domain.UploadLog{
		RunID:             r.RunID,
		Timestamp:         r.Timestamp,
		Filename:          r.Filename,
		CustomersRows:     int(r.CustomersRowCount),
		TransactionsRows:  int(r.TransactionsRowCount),
		ProductsRows:      int(r.ProductsRowCount),
		ProcessingSeconds: r.ProcessingTime,
	}
}
