// Package jobs tracks processing runs.
package jobs

import (
	"context"
	"errors"
	"time"
)

// RunStatus represents the current status of a run.
type RunStatus string

const (
	// RunStatusPending indicates the run is waiting for the processor.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the workbook is being processed.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates outputs were written. Row errors may still exist.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run produced no outputs.
	RunStatusFailed RunStatus = "failed"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Run is one processing of an uploaded workbook.
type Run struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// Filename is the sanitized name of the uploaded workbook.
	Filename string `json:"filename"`

	// Status is the current status of the run.
	Status RunStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the terminal error of a failed run.
	Error string `json:"error,omitempty"`

	// Summary holds the headline statistics of a completed run.
	Summary []string `json:"summary,omitempty"`

	// RowErrors counts rows rejected during reconciliation.
	RowErrors int `json:"row_errors"`

	ProcessedFile string `json:"processed_file,omitempty"`
	ReportFile    string `json:"report_file,omitempty"`
}

// RunStore stores run state.
type RunStore interface {
	// SaveRun saves or updates a run.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

}

// RunFilter defines filtering criteria for listing runs.
type RunFilter struct {
	// Status filters runs by status.
	Status RunStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
