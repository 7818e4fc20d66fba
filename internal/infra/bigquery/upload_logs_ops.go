package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// EnsureUploadLogTableWithClient creates the dataset and the upload_logs
// table when they do not exist.
func EnsureUploadLogTableWithClient(ctx context.Context, client *bigquery.Client, datasetID string) error {
	ddl := fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS `+"`%s.%s`"+`;
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.%s`"+` (
			run_id STRING NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			run_date DATE NOT NULL,
			filename STRING,
			customers_row_count INT64,
			transactions_row_count INT64,
			products_row_count INT64,
			processing_time FLOAT64
		)
		PARTITION BY run_date
	`, client.Project(), datasetID, client.Project(), datasetID, uploadLogsTable)

	job, err := client.Query(ddl).Run(ctx)
	if err != nil {
		return fmt.Errorf("EnsureUploadLogTableWithClient: running DDL: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("EnsureUploadLogTableWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("EnsureUploadLogTableWithClient: job error: %w", err)
	}

	return nil
}

// InsertUploadLogWithClient streams one row into upload_logs.
func InsertUploadLogWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *UploadLogRow) error {
	inserter := client.Dataset(datasetID).Table(uploadLogsTable).Inserter()

	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertUploadLogWithClient: inserting row: %w", err)
	}

	return nil
}

// ListUploadLogsWithClient returns the newest rows first. limit <= 0
// returns every row.
func ListUploadLogsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]*UploadLogRow, error) {
	query := fmt.Sprintf(`
		SELECT
			run_id,
			timestamp,
			run_date,
			filename,
			customers_row_count,
			transactions_row_count,
			products_row_count,
			processing_time
		FROM `+"`%s.%s.%s`"+`
		ORDER BY timestamp DESC
	`, client.Project(), datasetID, uploadLogsTable)

	q := client.Query(query)
	if limit > 0 {
		q = client.Query(query + "LIMIT @limit")
		q.Parameters = []bigquery.QueryParameter{
			{Name: "limit", Value: limit},
		}
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUploadLogsWithClient: reading query: %w", err)
	}

	var rows []*UploadLogRow
	for {
		var row UploadLogRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUploadLogsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
