// Package store defines persistence for reconciled customers, their
// append-only address change log and the upload log.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/customer-insights/internal/domain"
)

// Queries are the operations the reconciliation engine runs for one row.
// Implementations are bound either to the database or to an open transaction.
type Queries interface {
	// Get returns the stored customer, or nil when the id is unknown.
	Get(ctx context.Context, customerID string) (*domain.CustomerRecord, error)

	// Upsert inserts rec, or for an existing id overwrites only its address
	// and last_updated. Name, email, dob and created_at are kept from the
	// first insert.
	Upsert(ctx context.Context, rec domain.CustomerRecord) error

	// AppendChange adds an entry to the change log. The customer must exist.
	AppendChange(ctx context.Context, change domain.AddressChange) error
}

// Store is a durable customer store.
type Store interface {
	Queries

	// History returns the changes recorded for a customer, most recent first.
	History(ctx context.Context, customerID string) ([]domain.AddressChange, error)

	// AllCustomers returns every stored customer ordered by id.
	AllCustomers(ctx context.Context) ([]domain.CustomerRecord, error)

	// ChangeCount returns the size of the full change log.
	ChangeCount(ctx context.Context) (int, error)

	// InTx runs fn in a transaction. The transaction commits when fn returns
	// nil and rolls back on error or panic.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// RecordUpload appends to the upload log.
	RecordUpload(ctx context.Context, entry domain.UploadLog) error

	// ListUploads returns the newest upload log entries first.
	ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error)

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	Close() error
}

// UploadLog is where successful runs are recorded. Store implements it;
// the BigQuery repository is the alternative sink.
type UploadLog interface {
	RecordUpload(ctx context.Context, entry domain.UploadLog) error
	ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error)
}

// Wrap turns err into a *domain.StoreError unless it already is one.
func Wrap(op, customerID string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, CustomerID: customerID, Err: err}
}
