// Package reconcile merges incoming customer rows into the customer store,
// recording an address change whenever a known customer arrives with a new
// address.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/customer-insights/internal/customer"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/rs/zerolog"
)

// Outcome tags what happened to one incoming row.
type Outcome string

const (
	OutcomeInserted       Outcome = "inserted"
	OutcomeAddressChanged Outcome = "address_changed"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeFailed         Outcome = "failed"
)

// RowResult is the outcome for one incoming row. Row is 1-based.
type RowResult struct {
	Row        int
	CustomerID string
	Outcome    Outcome
	Change     *domain.AddressChange
	Err        error
}

// Result is the state after a batch: per-row outcomes, every stored customer
// with its history, and the failed rows.
type Result struct {
	Rows      []RowResult
	Customers []domain.CustomerWithHistory
	Errors    []domain.RowError
}

// Count returns how many rows ended with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, row := range r.Rows {
		if row.Outcome == o {
			n++
		}
	}
	return n
}

// Engine reconciles batches against a store. It is the only writer of
// customer state.
type Engine struct {
	store store.Store
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the processing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine over s.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run parses the encoded customer strings and reconciles them in order.
// Unparseable rows are reported in Result.Errors and do not stop the batch.
func (e *Engine) Run(ctx context.Context, encoded []string, sourceFile string) (*Result, error) {
	res := &Result{}
	for i, raw := range encoded {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Run: cancelled after %d rows: %w", i, err)
		}

		row := i + 1
		parsed, err := customer.Parse(raw)
		if err != nil {
			e.log.Warn().Err(err).Int("row", row).Msg("Skipping unparseable customer row")
			res.add(RowResult{Row: row, CustomerID: customer.RowKey(raw), Outcome: OutcomeFailed, Err: err})
			continue
		}
		res.add(e.apply(ctx, row, parsed, sourceFile))
	}

	return e.finish(ctx, res)
}

// Reconcile applies already parsed rows in order.
func (e *Engine) Reconcile(ctx context.Context, rows []domain.ParsedCustomer, sourceFile string) (*Result, error) {
	res := &Result{}
	for i, parsed := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Reconcile: cancelled after %d rows: %w", i, err)
		}
		res.add(e.apply(ctx, i+1, parsed, sourceFile))
	}

	return e.finish(ctx, res)
}

// apply reconciles one row in its own transaction, so the change log entry
// and the address update commit together or not at all.
func (e *Engine) apply(ctx context.Context, row int, in domain.ParsedCustomer, sourceFile string) RowResult {
	result := RowResult{Row: row, CustomerID: in.CustomerID}
	now := e.now().UTC()

	err := e.store.InTx(ctx, func(q store.Queries) error {
		existing, err := q.Get(ctx, in.CustomerID)
		if err != nil {
			return err
		}

		if existing == nil {
			result.Outcome = OutcomeInserted
			return q.Upsert(ctx, domain.CustomerRecord{
				CustomerID:  in.CustomerID,
				Name:        in.Name,
				Email:       in.Email,
				DOB:         in.DOB,
				Address:     in.Address,
				CreatedAt:   in.CreatedAt,
				LastUpdated: now,
			})
		}

		if existing.Address == in.Address {
			result.Outcome = OutcomeUnchanged
			return nil
		}

		change := domain.AddressChange{
			CustomerID: in.CustomerID,
			OldAddress: existing.Address,
			NewAddress: in.Address,
			ChangedAt:  now,
			SourceFile: sourceFile,
		}
		if err := q.AppendChange(ctx, change); err != nil {
			return err
		}

		updated := *existing
		updated.Address = in.Address
		updated.LastUpdated = now
		if err := q.Upsert(ctx, updated); err != nil {
			return err
		}

		result.Outcome = OutcomeAddressChanged
		result.Change = &change
		return nil
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Change = nil
		result.Err = store.Wrap("reconcile", in.CustomerID, err)
		e.log.Warn().Err(err).Int("row", row).Str("customer_id", in.CustomerID).Msg("Customer row not reconciled")
	}

	return result
}

// finish reads back the committed state. A failure here is not row-scoped
// and fails the batch.
func (e *Engine) finish(ctx context.Context, res *Result) (*Result, error) {
	customers, err := e.store.AllCustomers(ctx)
	if err != nil {
		return nil, store.Wrap("read back customers", "", err)
	}

	res.Customers = make([]domain.CustomerWithHistory, 0, len(customers))
	for _, c := range customers {
		history, err := e.store.History(ctx, c.CustomerID)
		if err != nil {
			return nil, store.Wrap("read back history", c.CustomerID, err)
		}
		res.Customers = append(res.Customers, domain.CustomerWithHistory{
			CustomerRecord: c,
			History:        history,
		})
	}

	e.log.Info().
		Int("rows", len(res.Rows)).
		Int("inserted", res.Count(OutcomeInserted)).
		Int("address_changes", res.Count(OutcomeAddressChanged)).
		Int("unchanged", res.Count(OutcomeUnchanged)).
		Int("failed", res.Count(OutcomeFailed)).
		Msg("Reconciliation finished")

	return res, nil
}

func (r *Result) add(row RowResult) {
	r.Rows = append(r.Rows, row)
	if row.Outcome == OutcomeFailed {
		r.Errors = append(r.Errors, domain.RowError{
			Row:        row.Row,
			CustomerID: row.CustomerID,
			Message:    row.Err.Error(),
			Err:        row.Err,
		})
	}
}
