package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/customer-insights/internal/app"
	"github.com/dvloznov/customer-insights/internal/config"
	infraBQ "github.com/dvloznov/customer-insights/internal/infra/bigquery"
	"github.com/dvloznov/customer-insights/internal/logger"
	"github.com/rs/zerolog"
)

var (
	configPath = flag.String("config", os.Getenv("INSIGHTS_CONFIG"), "Path to a YAML config file (or set INSIGHTS_CONFIG env)")
	skipBQ     = flag.Bool("skip-bigquery", false, "Do not create the BigQuery upload log table")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

// run applies pending customer store migrations and, when the upload log
// goes to BigQuery, creates its dataset and table. Settings unrelated to
// storage are not validated.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	s, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer s.Close()

	log.Info().Str("driver", cfg.Store.Driver).Msg("Applying store migrations")
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	log.Info().Msg("Store schema is up to date")

	if cfg.UploadLog.Sink != config.SinkBigQuery || *skipBQ {
		return nil
	}

	repo, err := infraBQ.NewBigQueryUploadLogRepository(ctx, cfg.UploadLog.Project, cfg.UploadLog.Dataset)
	if err != nil {
		return err
	}
	defer repo.Close()

	log.Info().
		Str("project", cfg.UploadLog.Project).
		Str("dataset", cfg.UploadLog.Dataset).
		Msg("Ensuring BigQuery upload log table")
	if err := repo.EnsureTable(ctx); err != nil {
		return err
	}
	log.Info().Msg("BigQuery upload log table is ready")

	return nil
}
