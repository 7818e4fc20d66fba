package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/geo"
	"github.com/dvloznov/customer-insights/internal/report"
	"github.com/dvloznov/customer-insights/internal/store"
)

// Enricher adds coordinates to reconciled customers.
type Enricher interface {
	Enrich(ctx context.Context, customers []domain.CustomerWithHistory) (geo.Stats, error)
}

// Archiver copies a run's files to long-term storage.
type Archiver interface {
	ArchiveRun(ctx context.Context, runID string, at time.Time, filePaths ...string) ([]string, error)
}

// Narrator is re-exported so callers only import pipeline.
type Narrator = report.Narrator

// UploadLogger is where successful runs are recorded.
type UploadLogger = store.UploadLog

var (
	_ Enricher = (*geo.Enricher)(nil)
	_ Narrator = (*report.GeminiNarrator)(nil)
)
