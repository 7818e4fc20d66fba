package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/dvloznov/customer-insights/internal/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "customers.db"))
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return s
}

// tickingClock advances one second per call so change timestamps are distinct.
func tickingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

var batch = []string{
	"{C1_Ann Lee_ann@example.com_1990-01-01_1 Main St_44197}",
	"{C2_Bob Roy_bob@example.com_1985-06-15_9 Elm Rd_44200}",
	"{C3_Cat Poe_cat@example.com_1979-12-31_4 Oak Ave_44300.5}",
}

func TestRun_InsertsNewCustomers(t *testing.T) {
	s := newStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(s, WithClock(tickingClock(start)))

	res, err := engine.Run(context.Background(), batch, "jan.xlsx")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := res.Count(OutcomeInserted); got != 3 {
		t.Errorf("inserted = %d, want 3", got)
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}
	if len(res.Customers) != 3 {
		t.Fatalf("customers = %d, want 3", len(res.Customers))
	}

	c1 := res.Customers[0]
	if c1.CustomerID != "C1" || c1.Address != "1 Main St" || c1.Email != "ann@example.com" {
		t.Errorf("unexpected C1: %+v", c1.CustomerRecord)
	}
	if want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC); !c1.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %s, want %s", c1.CreatedAt, want)
	}
	if !c1.LastUpdated.After(start) {
		t.Errorf("LastUpdated = %s, want processing time after %s", c1.LastUpdated, start)
	}
	if len(c1.History) != 0 {
		t.Errorf("new customer should have no history, got %+v", c1.History)
	}
}

func TestRun_Idempotent(t *testing.T) {
	s := newStore(t)
	engine := NewEngine(s, WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	if _, err := engine.Run(ctx, batch, "a.xlsx"); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	before, _ := s.AllCustomers(ctx)

	res, err := engine.Run(ctx, batch, "a.xlsx")
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if got := res.Count(OutcomeUnchanged); got != len(batch) {
		t.Errorf("unchanged = %d, want %d", got, len(batch))
	}
	n, err := s.ChangeCount(ctx)
	if err != nil {
		t.Fatalf("ChangeCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected zero address changes after reprocessing, got %d", n)
	}

	after, _ := s.AllCustomers(ctx)
	for i := range before {
		if !before[i].LastUpdated.Equal(after[i].LastUpdated) {
			t.Errorf("%s last_updated moved on unchanged row", before[i].CustomerID)
		}
	}
}

func TestRun_ChangeThenRevert(t *testing.T) {
	s := newStore(t)
	engine := NewEngine(s, WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	steps := []string{
		"{C1_Ann_ann@example.com_1990-01-01_A_44197}",
		"{C1_Ann_ann@example.com_1990-01-01_B_44197}",
		"{C1_Ann_ann@example.com_1990-01-01_A_44197}",
	}
	var last *Result
	for i, row := range steps {
		res, err := engine.Run(ctx, []string{row}, "step.xlsx")
		if err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		last = res
	}

	history := last.Customers[0].History
	if len(history) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(history))
	}
	if history[0].OldAddress != "B" || history[0].NewAddress != "A" {
		t.Errorf("most recent change = %s->%s, want B->A", history[0].OldAddress, history[0].NewAddress)
	}
	if history[1].OldAddress != "A" || history[1].NewAddress != "B" {
		t.Errorf("oldest change = %s->%s, want A->B", history[1].OldAddress, history[1].NewAddress)
	}
	if history[0].SourceFile != "step.xlsx" {
		t.Errorf("SourceFile = %q, want step.xlsx", history[0].SourceFile)
	}
	if last.Customers[0].Address != "A" {
		t.Errorf("current address = %q, want A", last.Customers[0].Address)
	}
	if last.Rows[0].Outcome != OutcomeAddressChanged || last.Rows[0].Change == nil {
		t.Errorf("expected tagged address change, got %+v", last.Rows[0])
	}
}

func TestRun_SameBatchLaterRowWins(t *testing.T) {
	s := newStore(t)
	engine := NewEngine(s, WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))

	res, err := engine.Run(context.Background(), []string{
		"{C1_Ann_ann@example.com_1990-01-01_A_44197}",
		"{C1_Ann_ann@example.com_1990-01-01_B_44197}",
	}, "dup.xlsx")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Rows[0].Outcome != OutcomeInserted || res.Rows[1].Outcome != OutcomeAddressChanged {
		t.Errorf("outcomes = %s, %s", res.Rows[0].Outcome, res.Rows[1].Outcome)
	}
	if res.Customers[0].Address != "B" {
		t.Errorf("address = %q, want B", res.Customers[0].Address)
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	s := newStore(t)
	engine := NewEngine(s)

	rows := []string{batch[0], "{C9_broken_row}", batch[1], batch[2]}

	res, err := engine.Run(context.Background(), rows, "mixed.xlsx")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Customers) != len(rows)-1 {
		t.Errorf("customers = %d, want %d", len(res.Customers), len(rows)-1)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(res.Errors))
	}

	rowErr := res.Errors[0]
	if rowErr.Row != 2 || rowErr.CustomerID != "C9" {
		t.Errorf("row error = %+v, want row 2 for C9", rowErr)
	}
	var parseErr *domain.ParseError
	if !errors.As(rowErr.Err, &parseErr) {
		t.Errorf("expected *domain.ParseError, got %T", rowErr.Err)
	}
}

// failingStore fails writes for one customer id.
type failingStore struct {
	store.Store
	failID string
}

func (f *failingStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return f.Store.InTx(ctx, func(q store.Queries) error {
		return fn(failingQueries{Queries: q, failID: f.failID})
	})
}

type failingQueries struct {
	store.Queries
	failID string
}

func (f failingQueries) Upsert(ctx context.Context, rec domain.CustomerRecord) error {
	if rec.CustomerID == f.failID {
		return errors.New("disk full")
	}
	return f.Queries.Upsert(ctx, rec)
}

func TestRun_StoreErrorIsRowScoped(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	engine := NewEngine(&failingStore{Store: s, failID: "C2"})

	res, err := engine.Run(ctx, batch, "x.xlsx")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Errors) != 1 || res.Errors[0].CustomerID != "C2" {
		t.Fatalf("errors = %+v, want one for C2", res.Errors)
	}
	var storeErr *domain.StoreError
	if !errors.As(res.Errors[0].Err, &storeErr) {
		t.Errorf("expected *domain.StoreError, got %T", res.Errors[0].Err)
	}
	if len(res.Customers) != 2 {
		t.Errorf("customers = %d, want 2", len(res.Customers))
	}
}

func TestRun_ChangeAndUpdateAreAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := NewEngine(s).Run(ctx, []string{"{C2_Bob_b@x.io_1985-06-15_Old Rd_44200}"}, "a.xlsx"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// The change log insert succeeds but the address update fails; neither may persist.
	res, err := NewEngine(&failingStore{Store: s, failID: "C2"}).Run(ctx, []string{"{C2_Bob_b@x.io_1985-06-15_New Rd_44200}"}, "b.xlsx")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one row error, got %d", len(res.Errors))
	}

	n, _ := s.ChangeCount(ctx)
	if n != 0 {
		t.Errorf("change log has %d rows after rolled back update, want 0", n)
	}
	got, _ := s.Get(ctx, "C2")
	if got.Address != "Old Rd" {
		t.Errorf("address = %q, want Old Rd", got.Address)
	}
}

func TestReconcile_PreParsed(t *testing.T) {
	s := newStore(t)
	created := time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC)

	res, err := NewEngine(s).Reconcile(context.Background(), []domain.ParsedCustomer{
		{CustomerID: "P1", Name: "Pat", Address: "1 Way", CreatedAt: created},
	}, "")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Count(OutcomeInserted) != 1 || !res.Customers[0].CreatedAt.Equal(created) {
		t.Errorf("unexpected result: %+v", res.Customers)
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewEngine(s).Run(ctx, batch, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
