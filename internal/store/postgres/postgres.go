// Package postgres is a customer store on PostgreSQL for deployments where
// several API instances share one history.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a store.Store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	queries
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &domain.StoreError{Op: "open", Err: err}
	}

	return &Store{pool: pool, queries: queries{db: pool}}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.withTx(ctx, func(tx dbtx) error {
		return fn(queries{db: tx})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.StoreError{Op: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else if cerr := tx.Commit(ctx); cerr != nil {
			err = &domain.StoreError{Op: "commit", Err: cerr}
		}
	}()

	return fn(tx)
}

// Migrate implements store.Store.
func (s *Store) Migrate(ctx context.Context) error {
	migrations, err := store.LoadMigrations(migrationFiles, "migrations")
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT
		)`); err != nil {
		return &domain.StoreError{Op: "migrate", Err: fmt.Errorf("creating schema_migrations: %w", err)}
	}

	rows, err := s.pool.Query(ctx, `SELECT version, name, COALESCE(checksum, '') FROM schema_migrations ORDER BY version`)
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.AppliedMigration, error) {
		var am store.AppliedMigration
		err := row.Scan(&am.Version, &am.Name, &am.Checksum)
		return am, err
	})
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}

	pending, err := store.Pending(migrations, applied)
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}

	for _, m := range pending {
		err := s.withTx(ctx, func(tx dbtx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing %s: %w", m.Filename, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				m.Version, m.Name, m.Checksum); err != nil {
				return fmt.Errorf("recording %s: %w", m.Filename, err)
			}
			return nil
		})
		if err != nil {
			return store.Wrap("migrate", "", err)
		}
	}

	return nil
}

// History implements store.Store.
func (s *Store) History(ctx context.Context, customerID string) ([]domain.AddressChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT change_id, customer_id, COALESCE(old_address, ''), COALESCE(new_address, ''),
		       change_date, COALESCE(source_file, '')
		FROM address_changes
		WHERE customer_id = $1
		ORDER BY change_date DESC, change_id DESC`, customerID)
	if err != nil {
		return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
	}

	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AddressChange, error) {
		var c domain.AddressChange
		err := row.Scan(&c.ChangeID, &c.CustomerID, &c.OldAddress, &c.NewAddress, &c.ChangedAt, &c.SourceFile)
		c.ChangedAt = c.ChangedAt.UTC()
		return c, err
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
	}
	return changes, nil
}

// AllCustomers implements store.Store.
func (s *Store) AllCustomers(ctx context.Context) ([]domain.CustomerRecord, error) {
	rows, err := s.pool.Query(ctx, selectCustomer+` ORDER BY customer_id`)
	if err != nil {
		return nil, &domain.StoreError{Op: "all customers", Err: err}
	}

	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CustomerRecord, error) {
		rec, err := scanCustomer(row)
		if err != nil {
			return domain.CustomerRecord{}, err
		}
		return *rec, nil
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "all customers", Err: err}
	}
	return customers, nil
}

// ChangeCount implements store.Store.
func (s *Store) ChangeCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM address_changes`).Scan(&n); err != nil {
		return 0, &domain.StoreError{Op: "change count", Err: err}
	}
	return n, nil
}

// RecordUpload implements store.Store.
func (s *Store) RecordUpload(ctx context.Context, entry domain.UploadLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upload_logs
		(run_id, timestamp, filename, customers_row_count, transactions_row_count, products_row_count, processing_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.RunID, entry.Timestamp, entry.Filename,
		entry.CustomersRows, entry.TransactionsRows, entry.ProductsRows, entry.ProcessingSeconds)
	if err != nil {
		return &domain.StoreError{Op: "record upload", Err: err}
	}
	return nil
}

// ListUploads implements store.Store.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(run_id, ''), timestamp, filename,
		       COALESCE(customers_row_count, 0), COALESCE(transactions_row_count, 0),
		       COALESCE(products_row_count, 0), COALESCE(processing_time, 0)
		FROM upload_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`, limitArg)
	if err != nil {
		return nil, &domain.StoreError{Op: "list uploads", Err: err}
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UploadLog, error) {
		var u domain.UploadLog
		err := row.Scan(&u.ID, &u.RunID, &u.Timestamp, &u.Filename,
			&u.CustomersRows, &u.TransactionsRows, &u.ProductsRows, &u.ProcessingSeconds)
		return u, err
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list uploads", Err: err}
	}
	return logs, nil
}

const selectCustomer = `
	SELECT customer_id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(dob, ''), COALESCE(address, ''),
	       COALESCE(created_date, 'epoch'::timestamptz), COALESCE(last_updated, 'epoch'::timestamptz)
	FROM customers`

type queries struct {
	db dbtx
}

func (q queries) Get(ctx context.Context, customerID string) (*domain.CustomerRecord, error) {
	rec, err := scanCustomer(q.db.QueryRow(ctx, selectCustomer+` WHERE customer_id = $1`, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get", CustomerID: customerID, Err: err}
	}
	return rec, nil
}

func (q queries) Upsert(ctx context.Context, rec domain.CustomerRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO customers (customer_id, name, email, dob, address, created_date, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (customer_id) DO UPDATE SET
			address = EXCLUDED.address,
			last_updated = EXCLUDED.last_updated`,
		rec.CustomerID, rec.Name, rec.Email, rec.DOB, rec.Address, rec.CreatedAt, rec.LastUpdated)
	if err != nil {
		return &domain.StoreError{Op: "upsert", CustomerID: rec.CustomerID, Err: err}
	}
	return nil
}

func (q queries) AppendChange(ctx context.Context, change domain.AddressChange) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO address_changes (customer_id, old_address, new_address, change_date, source_file)
		VALUES ($1, $2, $3, $4, $5)`,
		change.CustomerID, change.OldAddress, change.NewAddress, change.ChangedAt, change.SourceFile)
	if err != nil {
		return &domain.StoreError{Op: "append change", CustomerID: change.CustomerID, Err: err}
	}
	return nil
}

func scanCustomer(row pgx.Row) (*domain.CustomerRecord, error) {
	var rec domain.CustomerRecord
	if err := row.Scan(&rec.CustomerID, &rec.Name, &rec.Email, &rec.DOB, &rec.Address,
		&rec.CreatedAt, &rec.LastUpdated); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastUpdated = rec.LastUpdated.UTC()
	return &rec, nil
}

var _ store.Store = (*Store)(nil)
