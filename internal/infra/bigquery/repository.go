package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/store"
)

// BigQueryUploadLogRepository records upload log entries in BigQuery.
// It holds a shared client for the lifetime of the process.
type BigQueryUploadLogRepository struct {
	client    *bigquery.Client
	datasetID string
}

// NewBigQueryUploadLogRepository creates a repository for projectID.datasetID.
func NewBigQueryUploadLogRepository(ctx context.Context, projectID, datasetID string) (*BigQueryUploadLogRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryUploadLogRepository: creating client: %w", err)
	}
	return &BigQueryUploadLogRepository{
		client:    client,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryUploadLogRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable delegates to EnsureUploadLogTableWithClient.
func (r *BigQueryUploadLogRepository) EnsureTable(ctx context.Context) error {
	return EnsureUploadLogTableWithClient(ctx, r.client, r.datasetID)
}

// RecordUpload delegates to InsertUploadLogWithClient.
func (r *BigQueryUploadLogRepository) RecordUpload(ctx context.Context, entry domain.UploadLog) error {
	return InsertUploadLogWithClient(ctx, r.client, r.datasetID, NewUploadLogRow(entry))
}

// ListUploads delegates to ListUploadLogsWithClient.
func (r *BigQueryUploadLogRepository) ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error) {
	rows, err := ListUploadLogsWithClient(ctx, r.client, r.datasetID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.UploadLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}

var _ store.UploadLog = (*BigQueryUploadLogRepository)(nil)
