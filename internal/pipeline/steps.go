package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dvloznov/customer-insights/internal/aggregate"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/geo"
	"github.com/dvloznov/customer-insights/internal/logger"
	"github.com/dvloznov/customer-insights/internal/reconcile"
	"github.com/dvloznov/customer-insights/internal/report"
	"github.com/dvloznov/customer-insights/internal/summary"
	"github.com/dvloznov/customer-insights/internal/workbook"
)

// PipelineStep represents a single step of processing one workbook.
type PipelineStep interface {
	Execute(ctx context.Context, state *RunState) error
}

// RunState holds the shared state across all pipeline steps.
type RunState struct {
	RunID     string
	InputPath string
	Filename  string

	Workbook     *workbook.Workbook
	Customers    []string
	Transactions []domain.TransactionRecord
	Products     []domain.ProductRecord

	Reconciled *reconcile.Result
	Aggregates *aggregate.Aggregates
	Summary    []string
	Geocoding  geo.Stats

	ProcessedFile string
	ReportFile    string
	Narrative     string
}

// Step 1: ValidateStep opens the workbook and checks its shape.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *RunState) error {
	wb, err := workbook.Open(state.InputPath)
	if err != nil {
		return &workbook.ValidationError{Message: "Unable to read workbook: " + unwrapAll(err).Error()}
	}
	if err := workbook.Validate(wb); err != nil {
		return err
	}
	state.Workbook = wb
	return nil
}

// Step 2: DecodeStep decodes every sheet before any customer is stored,
// so a malformed transaction or product table aborts with the store untouched.
type DecodeStep struct{}

func (s *DecodeStep) Execute(ctx context.Context, state *RunState) error {
	state.Customers = state.Workbook.CustomerStrings()

	txs, err := state.Workbook.Transactions()
	if err != nil {
		return &domain.AggregationFailure{Stage: "decode transactions", Err: err}
	}
	products, err := state.Workbook.Products()
	if err != nil {
		return &domain.AggregationFailure{Stage: "decode products", Err: err}
	}

	state.Transactions = txs
	state.Products = products
	return nil
}

// Step 3: ReconcileStep merges the customer rows into the store.
type ReconcileStep struct {
	Engine *reconcile.Engine
}

func (s *ReconcileStep) Execute(ctx context.Context, state *RunState) error {
	res, err := s.Engine.Run(ctx, state.Customers, state.Filename)
	if err != nil {
		return err
	}
	state.Reconciled = res
	return nil
}

// Step 4: AggregateStep computes the spending tables.
type AggregateStep struct{}

func (s *AggregateStep) Execute(ctx context.Context, state *RunState) error {
	agg, err := aggregate.Compute(aggregate.Input{
		Transactions: state.Transactions,
		Products:     state.Products,
		Customers:    state.Reconciled.Customers,
	})
	if err != nil {
		return err
	}
	state.Aggregates = agg
	return nil
}

// Step 5: SummaryStep builds the headline statistics. The change count
// covers the whole log, not just this run.
type SummaryStep struct {
	Changes interface {
		ChangeCount(ctx context.Context) (int, error)
	}
}

func (s *SummaryStep) Execute(ctx context.Context, state *RunState) error {
	changes, err := s.Changes.ChangeCount(ctx)
	if err != nil {
		return fmt.Errorf("counting address changes: %w", err)
	}
	state.Summary = summary.Build(len(state.Reconciled.Customers), changes, state.Aggregates.Rankings)
	return nil
}

// Step 6: GeocodeStep fills in customer coordinates. Lookup failures only
// leave coordinates empty.
type GeocodeStep struct {
	Enricher Enricher
}

func (s *GeocodeStep) Execute(ctx context.Context, state *RunState) error {
	if s.Enricher == nil {
		return nil
	}
	stats, err := s.Enricher.Enrich(ctx, state.Reconciled.Customers)
	if err != nil {
		return fmt.Errorf("geocoding: %w", err)
	}
	state.Geocoding = stats
	return nil
}

// Step 7: WriteWorkbookStep writes processed_<filename>.
type WriteWorkbookStep struct {
	OutputDir string
}

func (s *WriteWorkbookStep) Execute(ctx context.Context, state *RunState) error {
	name := "processed_" + state.Filename
	err := workbook.WriteFile(filepath.Join(s.OutputDir, name), workbook.Output{
		Customers:      state.Reconciled.Customers,
		CategoryTotals: state.Aggregates.CategoryTotals,
		TopSpenders:    state.Aggregates.TopSpenders,
		Rankings:       state.Aggregates.Rankings,
	})
	if err != nil {
		return err
	}
	state.ProcessedFile = name
	return nil
}

// Step 8: ReportStep writes report_<stem>.docx. A narrator failure only
// drops the narrative section.
type ReportStep struct {
	OutputDir string
	Narrator  Narrator
	Now       func() time.Time
}

func (s *ReportStep) Execute(ctx context.Context, state *RunState) error {
	doc := report.Build(state.Filename, s.Now(), state.Summary, state.Aggregates.TopSpenders, state.Aggregates.Rankings)

	if s.Narrator != nil {
		narrative, err := s.Narrator.Narrate(ctx, doc)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Narrative generation failed; writing report without it")
		} else {
			doc.Narrative = narrative
			state.Narrative = narrative
		}
	}

	name := report.FileName(state.Filename)
	if err := report.WriteFile(filepath.Join(s.OutputDir, name), doc); err != nil {
		return err
	}
	state.ReportFile = name
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
// Typed errors (validation, aggregation, store) stay matchable with errors.As.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%T) failed: %w", i+1, step, err)
		}
	}
	return nil
}

func unwrapAll(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
