// Package pipeline processes one uploaded workbook end to end: validation,
// reconciliation, aggregation, enrichment and the output files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dvloznov/customer-insights/internal/aggregate"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/geo"
	"github.com/dvloznov/customer-insights/internal/jobs"
	"github.com/dvloznov/customer-insights/internal/logger"
	"github.com/dvloznov/customer-insights/internal/reconcile"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/dvloznov/customer-insights/internal/workbook"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators of a Processor. Store, Runs and
// OutputDir are required; a nil Enricher, Narrator or Archiver disables
// that feature, and a nil UploadLog records into Store.
type Dependencies struct {
	Store     store.Store
	UploadLog UploadLogger
	Enricher  Enricher
	Narrator  Narrator
	Archiver  Archiver
	Runs      jobs.RunStore
	OutputDir string
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Output is everything a caller gets back from a completed run.
type Output struct {
	RunID          string                       `json:"run_id"`
	Filename       string                       `json:"filename"`
	ProcessedFile  string                       `json:"processed_file"`
	ReportFile     string                       `json:"report_file"`
	Summary        []string                     `json:"summary"`
	Errors         []domain.RowError            `json:"errors"`
	Customers      []domain.CustomerWithHistory `json:"-"`
	CategoryTotals []domain.CategoryTotal       `json:"-"`
	TopSpenders    []domain.TopSpender          `json:"-"`
	Rankings       []domain.CustomerRanking     `json:"-"`
	Dropped        aggregate.Dropped            `json:"dropped"`
	Geocoding      geo.Stats                    `json:"geocoding"`
	ArchiveURIs    []string                     `json:"archive_uris,omitempty"`
	ProcessingTime time.Duration                `json:"processing_time_ns"`
}

// Processor runs one workbook at a time.
type Processor struct {
	deps     Dependencies
	pipeline *Pipeline

	// mu serializes runs; a run waiting on it stays pending.
	mu sync.Mutex
}

// NewProcessor wires the standard processing steps.
func NewProcessor(deps Dependencies) *Processor {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.UploadLog == nil {
		deps.UploadLog = deps.Store
	}

	engine := reconcile.NewEngine(deps.Store,
		reconcile.WithClock(deps.Clock),
		reconcile.WithLogger(deps.Logger),
	)

	return &Processor{
		deps: deps,
		pipeline: NewPipeline(
			&ValidateStep{},
			&DecodeStep{},
			&ReconcileStep{Engine: engine},
			&AggregateStep{},
			&SummaryStep{Changes: deps.Store},
			&GeocodeStep{Enricher: deps.Enricher},
			&WriteWorkbookStep{OutputDir: deps.OutputDir},
			&ReportStep{OutputDir: deps.OutputDir, Narrator: deps.Narrator, Now: deps.Clock},
		),
	}
}

// ProcessFile processes the workbook at inputPath. Outputs are written to
// the output directory and named after the input's base name.
//
// The returned error is a *workbook.ValidationError for a rejected file, a
// *domain.AggregationFailure when the tables cannot be aggregated, or a
// store/IO error. Row-level problems are reported in Output.Errors instead.
func (p *Processor) ProcessFile(ctx context.Context, inputPath string) (*Output, error) {
	return p.process(ctx, inputPath, nil)
}

// ProcessUpload saves src as filename in the output directory and processes
// it. The file is written only once the run holds the processor, so an
// upload never replaces a workbook another run is still reading.
func (p *Processor) ProcessUpload(ctx context.Context, filename string, src io.Reader) (*Output, error) {
	inputPath := filepath.Join(p.deps.OutputDir, filename)
	return p.process(ctx, inputPath, func() error {
		return saveInput(inputPath, src)
	})
}

func (p *Processor) process(ctx context.Context, inputPath string, stage func() error) (*Output, error) {
	filename := filepath.Base(inputPath)
	run := &jobs.Run{
		RunID:     uuid.NewString(),
		Filename:  filename,
		Status:    jobs.RunStatusPending,
		CreatedAt: p.deps.Clock(),
	}
	if err := p.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("process: registering run: %w", err)
	}

	log := logger.WithRun(p.deps.Logger, run.RunID, filename)
	ctx = logger.WithContext(ctx, log)

	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.deps.Clock()
	run.Status = jobs.RunStatusRunning
	run.StartedAt = &started
	p.saveRun(ctx, run)

	if stage != nil {
		if err := stage(); err != nil {
			err = fmt.Errorf("ProcessUpload: saving %s: %w", filename, err)
			p.fail(ctx, run, err)
			return nil, err
		}
	}
	log.Info().Msg("Processing workbook")

	state := &RunState{RunID: run.RunID, InputPath: inputPath, Filename: filename}
	if err := p.pipeline.Execute(ctx, state); err != nil {
		p.fail(ctx, run, err)
		return nil, err
	}

	elapsed := p.deps.Clock().Sub(started)
	out := &Output{
		RunID:          run.RunID,
		Filename:       filename,
		ProcessedFile:  state.ProcessedFile,
		ReportFile:     state.ReportFile,
		Summary:        state.Summary,
		Errors:         state.Reconciled.Errors,
		Customers:      state.Reconciled.Customers,
		CategoryTotals: state.Aggregates.CategoryTotals,
		TopSpenders:    state.Aggregates.TopSpenders,
		Rankings:       state.Aggregates.Rankings,
		Dropped:        state.Aggregates.Dropped,
		Geocoding:      state.Geocoding,
		ProcessingTime: elapsed,
	}
	if out.Errors == nil {
		out.Errors = []domain.RowError{}
	}

	p.recordUpload(ctx, state, started, elapsed)
	out.ArchiveURIs = p.archive(ctx, run.RunID, started, inputPath, state)

	completed := p.deps.Clock()
	run.Status = jobs.RunStatusCompleted
	run.CompletedAt = &completed
	run.Summary = out.Summary
	run.RowErrors = len(out.Errors)
	run.ProcessedFile = out.ProcessedFile
	run.ReportFile = out.ReportFile
	p.saveRun(ctx, run)

	log.Info().
		Int("customers", len(out.Customers)).
		Int("row_errors", len(out.Errors)).
		Int("dropped_unknown_product", out.Dropped.UnknownProduct).
		Int("dropped_unknown_customer", out.Dropped.UnknownCustomer).
		Dur("elapsed", elapsed).
		Msg("Workbook processed")

	return out, nil
}

// Runs exposes the run registry.
func (p *Processor) Runs() jobs.RunStore {
	return p.deps.Runs
}

func (p *Processor) fail(ctx context.Context, run *jobs.Run, err error) {
	completed := p.deps.Clock()
	run.Status = jobs.RunStatusFailed
	run.CompletedAt = &completed
	run.Error = UserMessage(err)
	p.saveRun(ctx, run)

	log := logger.FromContext(ctx)
	log.Error().Err(err).Msg("Processing failed")
}

func (p *Processor) saveRun(ctx context.Context, run *jobs.Run) {
	if err := p.deps.Runs.SaveRun(ctx, run); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("status", string(run.Status)).Msg("Failed to save run state")
	}
}

func (p *Processor) recordUpload(ctx context.Context, state *RunState, started time.Time, elapsed time.Duration) {
	entry := domain.UploadLog{
		RunID:             state.RunID,
		Timestamp:         started,
		Filename:          state.Filename,
		CustomersRows:     len(state.Customers),
		TransactionsRows:  len(state.Transactions),
		ProductsRows:      len(state.Products),
		ProcessingSeconds: elapsed.Seconds(),
	}
	if err := p.deps.UploadLog.RecordUpload(ctx, entry); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record upload log")
	}
}

func (p *Processor) archive(ctx context.Context, runID string, at time.Time, inputPath string, state *RunState) []string {
	if p.deps.Archiver == nil {
		return nil
	}
	uris, err := p.deps.Archiver.ArchiveRun(ctx, runID, at,
		inputPath,
		filepath.Join(p.deps.OutputDir, state.ProcessedFile),
		filepath.Join(p.deps.OutputDir, state.ReportFile),
	)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to archive run")
	}
	return uris
}

func saveInput(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// UserMessage is the text shown to users for a failed run: the validation
// message when the file was rejected, otherwise the error itself.
func UserMessage(err error) string {
	var vErr *workbook.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	var aggErr *domain.AggregationFailure
	if errors.As(err, &aggErr) {
		return aggErr.Error()
	}
	return err.Error()
}
