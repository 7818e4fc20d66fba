// Package app builds the long-lived dependencies shared by the commands
// from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/customer-insights/internal/config"
	"github.com/dvloznov/customer-insights/internal/gcsuploader"
	"github.com/dvloznov/customer-insights/internal/geo"
	infra "github.com/dvloznov/customer-insights/internal/infra/bigquery"
	"github.com/dvloznov/customer-insights/internal/jobs/inmemory"
	"github.com/dvloznov/customer-insights/internal/pipeline"
	"github.com/dvloznov/customer-insights/internal/report"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/dvloznov/customer-insights/internal/store/postgres"
	"github.com/dvloznov/customer-insights/internal/store/sqlite"
	"github.com/rs/zerolog"
)

// App holds the opened store and the processor built on it.
type App struct {
	Config    *config.Config
	Store     store.Store
	UploadLog store.UploadLog
	Storage   *gcsuploader.GCSStorageService
	Processor *pipeline.Processor
	Logger    zerolog.Logger

	closers []func() error
}

// OpenStore opens the configured customer store. It does not migrate.
func OpenStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown driver %q", cfg.Driver)
	}
}

// OpenUploadLog returns the configured upload log sink. For the store sink
// it returns s and a no-op closer.
func OpenUploadLog(ctx context.Context, cfg config.UploadLog, s store.Store) (store.UploadLog, func() error, error) {
	if cfg.Sink != config.SinkBigQuery {
		return s, func() error { return nil }, nil
	}

	repo, err := infra.NewBigQueryUploadLogRepository(ctx, cfg.Project, cfg.Dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenUploadLog: %w", err)
	}
	return repo, repo.Close, nil
}

// New opens and migrates the store, then wires the processor and its
// optional collaborators. A schema failure is returned as fatal.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("app.New: creating upload dir: %w", err)
	}

	a := &App{Config: cfg, Logger: log}

	s, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)

	if err := s.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	uploadLog, closeUploadLog, err := OpenUploadLog(ctx, cfg.UploadLog, s)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.UploadLog = uploadLog
	a.closers = append(a.closers, closeUploadLog)

	deps := pipeline.Dependencies{
		Store:     s,
		UploadLog: uploadLog,
		Runs:      inmemory.NewStore(),
		OutputDir: cfg.UploadDir,
		Logger:    log,
	}

	if cfg.Geocoding.Enabled {
		client := geo.NewLocationIQ(cfg.Geocoding.BaseURL, cfg.Geocoding.APIKey, cfg.Geocoding.Timeout)
		deps.Enricher = geo.NewEnricher(client, cfg.Geocoding.Delay, log)
	}

	if cfg.Report.Narrative {
		narrator, err := report.NewGeminiNarrator(ctx, cfg.Report.APIKey, cfg.Report.Model)
		if err != nil {
			// The report is still written without a narrative.
			log.Warn().Err(err).Msg("Narrative disabled")
		} else {
			deps.Narrator = narrator
		}
	}

	if cfg.Archive.Bucket != "" {
		storage, err := gcsuploader.NewGCSStorageService(ctx, cfg.Archive.Bucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Storage = storage
		a.closers = append(a.closers, storage.Close)
		deps.Archiver = storage
	}

	a.Processor = pipeline.NewProcessor(deps)
	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
