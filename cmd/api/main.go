package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/customer-insights/internal/api/handlers"
	"github.com/dvloznov/customer-insights/internal/api/middleware"
	"github.com/dvloznov/customer-insights/internal/app"
	"github.com/dvloznov/customer-insights/internal/config"
	"github.com/dvloznov/customer-insights/internal/logger"
)

// routes are the handlers behind the API router.
type routes struct {
	uploads   *handlers.UploadsHandler
	downloads *handlers.DownloadsHandler
	customers *handlers.CustomersHandler
	runs      *handlers.RunsHandler
}

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("INSIGHTS_CONFIG"), "Path to a YAML config file (or set INSIGHTS_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Initialize logger
	log := logger.NewWithConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if cfg.Archive.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - run archiving is disabled")
	}

	// Initialize handlers
	mux := newRouter(routes{
		uploads:   handlers.NewUploadsHandler(a.Processor, a.UploadLog, log),
		downloads: handlers.NewDownloadsHandler(cfg.UploadDir, log),
		customers: handlers.NewCustomersHandler(a.Store, log),
		runs:      handlers.NewRunsHandler(a.Processor.Runs(), log),
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(
					middleware.BodyLimit(cfg.Server.MaxUploadBytes)(mux),
				),
			),
		),
	)

	// Processing a workbook includes geocoding, so writes get a long deadline.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func newRouter(rt routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Uploads endpoints
	mux.HandleFunc("/api/uploads", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			rt.uploads.Upload(w, r)
		case http.MethodGet:
			rt.uploads.ListUploads(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/downloads/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			name := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
			if name == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Filename is required")
				return
			}
			rt.downloads.Download(w, r, name)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Customers endpoints
	mux.HandleFunc("/api/customers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.customers.ListCustomers(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/customers/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		// Extract customer ID from /api/customers/{id}/history
		rest := strings.TrimPrefix(r.URL.Path, "/api/customers/")
		customerID, ok := strings.CutSuffix(rest, "/history")
		if !ok || customerID == "" || strings.Contains(customerID, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		rt.customers.GetHistory(w, r, customerID)
	})

	// Runs endpoints
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.runs.ListRuns(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract run ID from path
			runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
			if runID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
				return
			}
			rt.runs.GetRun(w, r, runID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
