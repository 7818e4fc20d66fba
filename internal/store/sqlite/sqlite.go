// Package sqlite is the default customer store, backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeLayout sorts lexically in chronological order, so ORDER BY on the
// text columns is ORDER BY time.
const timeLayout = "2006-01-02T15:04:05.000000"

// Rows written by older tooling used these forms.
var legacyLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a store.Store over SQLite. Foreign keys are enforced on every
// connection.
type Store struct {
	db *sql.DB
	queries
}

// Open opens (creating if needed) the database at path. Call Migrate before
// first use.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.Open: creating directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: err}
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "open", Err: err}
	}

	return &Store{db: db, queries: queries{db: db}}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.withTx(ctx, func(tx dbtx) error {
		return fn(queries{db: tx})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StoreError{Op: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else if cerr := tx.Commit(); cerr != nil {
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

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			checksum   TEXT
		)`); err != nil {
		return &domain.StoreError{Op: "migrate", Err: fmt.Errorf("creating schema_migrations: %w", err)}
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}

	pending, err := store.Pending(migrations, applied)
	if err != nil {
		return &domain.StoreError{Op: "migrate", Err: err}
	}

	for _, m := range pending {
		err := s.withTx(ctx, func(tx dbtx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing %s: %w", m.Filename, err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at, checksum) VALUES (?, ?, ?, ?)`,
				m.Version, m.Name, formatTime(time.Now()), m.Checksum)
			if err != nil {
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

func (s *Store) appliedMigrations(ctx context.Context) ([]store.AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, name, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []store.AppliedMigration
	for rows.Next() {
		var am store.AppliedMigration
		var checksum sql.NullString
		if err := rows.Scan(&am.Version, &am.Name, &checksum); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		am.Checksum = checksum.String
		applied = append(applied, am)
	}

	return applied, rows.Err()
}

// History implements store.Store.
func (s *Store) History(ctx context.Context, customerID string) ([]domain.AddressChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_id, customer_id, old_address, new_address, change_date, source_file
		FROM address_changes
		WHERE customer_id = ?
		ORDER BY change_date DESC, change_id DESC`, customerID)
	if err != nil {
		return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
	}
	defer rows.Close()

	var changes []domain.AddressChange
	for rows.Next() {
		var (
			c                  domain.AddressChange
			oldAddr, newAddr   sql.NullString
			changedAt, srcFile sql.NullString
		)
		if err := rows.Scan(&c.ChangeID, &c.CustomerID, &oldAddr, &newAddr, &changedAt, &srcFile); err != nil {
			return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
		}
		c.OldAddress = oldAddr.String
		c.NewAddress = newAddr.String
		c.SourceFile = srcFile.String
		if c.ChangedAt, err = parseTime(changedAt.String); err != nil {
			return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "history", CustomerID: customerID, Err: err}
	}

	return changes, nil
}

// AllCustomers implements store.Store.
func (s *Store) AllCustomers(ctx context.Context) ([]domain.CustomerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, email, dob, address, created_date, last_updated
		FROM customers
		ORDER BY customer_id`)
	if err != nil {
		return nil, &domain.StoreError{Op: "all customers", Err: err}
	}
	defer rows.Close()

	var customers []domain.CustomerRecord
	for rows.Next() {
		rec, err := scanCustomer(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "all customers", Err: err}
		}
		customers = append(customers, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "all customers", Err: err}
	}

	return customers, nil
}

// ChangeCount implements store.Store.
func (s *Store) ChangeCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM address_changes`).Scan(&n); err != nil {
		return 0, &domain.StoreError{Op: "change count", Err: err}
	}
	return n, nil
}

// RecordUpload implements store.Store.
func (s *Store) RecordUpload(ctx context.Context, entry domain.UploadLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_logs
		(run_id, timestamp, filename, customers_row_count, transactions_row_count, products_row_count, processing_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, formatTime(entry.Timestamp), entry.Filename,
		entry.CustomersRows, entry.TransactionsRows, entry.ProductsRows, entry.ProcessingSeconds)
	if err != nil {
		return &domain.StoreError{Op: "record upload", Err: err}
	}
	return nil
}

// ListUploads implements store.Store.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, filename, customers_row_count, transactions_row_count,
		       products_row_count, processing_time
		FROM upload_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "list uploads", Err: err}
	}
	defer rows.Close()

	var logs []domain.UploadLog
	for rows.Next() {
		var (
			u                 domain.UploadLog
			runID, ts         sql.NullString
			cust, txns, prods sql.NullInt64
			processing        sql.NullFloat64
		)
		if err := rows.Scan(&u.ID, &runID, &ts, &u.Filename, &cust, &txns, &prods, &processing); err != nil {
			return nil, &domain.StoreError{Op: "list uploads", Err: err}
		}
		if u.Timestamp, err = parseTime(ts.String); err != nil {
			return nil, &domain.StoreError{Op: "list uploads", Err: err}
		}
		u.RunID = runID.String
		u.CustomersRows = int(cust.Int64)
		u.TransactionsRows = int(txns.Int64)
		u.ProductsRows = int(prods.Int64)
		u.ProcessingSeconds = processing.Float64
		logs = append(logs, u)
	}

	return logs, rows.Err()
}

// queries implements store.Queries on a connection or transaction.
type queries struct {
	db dbtx
}

func (q queries) Get(ctx context.Context, customerID string) (*domain.CustomerRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT customer_id, name, email, dob, address, created_date, last_updated
		FROM customers
		WHERE customer_id = ?`, customerID)

	rec, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get", CustomerID: customerID, Err: err}
	}
	return rec, nil
}

func (q queries) Upsert(ctx context.Context, rec domain.CustomerRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, email, dob, address, created_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			address = excluded.address,
			last_updated = excluded.last_updated`,
		rec.CustomerID, rec.Name, rec.Email, rec.DOB, rec.Address,
		formatTime(rec.CreatedAt), formatTime(rec.LastUpdated))
	if err != nil {
		return &domain.StoreError{Op: "upsert", CustomerID: rec.CustomerID, Err: err}
	}
	return nil
}

func (q queries) AppendChange(ctx context.Context, change domain.AddressChange) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO address_changes (customer_id, old_address, new_address, change_date, source_file)
		VALUES (?, ?, ?, ?, ?)`,
		change.CustomerID, change.OldAddress, change.NewAddress, formatTime(change.ChangedAt), change.SourceFile)
	if err != nil {
		return &domain.StoreError{Op: "append change", CustomerID: change.CustomerID, Err: err}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*domain.CustomerRecord, error) {
	var (
		rec                       domain.CustomerRecord
		name, email, dob, address sql.NullString
		created, updated          sql.NullString
	)
	if err := row.Scan(&rec.CustomerID, &name, &email, &dob, &address, &created, &updated); err != nil {
		return nil, err
	}
	rec.Name = name.String
	rec.Email = email.String
	rec.DOB = dob.String
	rec.Address = address.String

	var err error
	if rec.CreatedAt, err = parseTime(created.String); err != nil {
		return nil, err
	}
	if rec.LastUpdated, err = parseTime(updated.String); err != nil {
		return nil, err
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(timeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

var _ store.Store = (*Store)(nil)
