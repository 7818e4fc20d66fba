package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/customer-insights/internal/api/middleware"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/jobs"
	"github.com/dvloznov/customer-insights/internal/pipeline"
	"github.com/dvloznov/customer-insights/internal/store"
	"github.com/dvloznov/customer-insights/internal/workbook"
	"github.com/rs/zerolog"
)

// allowedExtensions are the accepted upload types.
var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

// Processor saves an uploaded workbook and runs it through the pipeline.
type Processor interface {
	ProcessUpload(ctx context.Context, filename string, src io.Reader) (*pipeline.Output, error)
}

// UploadsHandler handles workbook uploads and the upload log.
type UploadsHandler struct {
	processor Processor
	uploads   store.UploadLog
	log       zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler.
func NewUploadsHandler(processor Processor, uploads store.UploadLog, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{
		processor: processor,
		uploads:   uploads,
		log:       log,
	}
}

// uploadResponse is the body of a successful POST /api/uploads.
type uploadResponse struct {
	*pipeline.Output
	ProcessedURL string `json:"processed_url"`
	ReportURL    string `json:"report_url"`
}

// Upload handles POST /api/uploads (multipart field "file").
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	filename := SanitizeFilename(header.Filename)
	if filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid file type. Please upload an Excel file (.xlsx or .xls)")
		return
	}

	out, err := h.processor.ProcessUpload(ctx, filename, file)
	if err != nil {
		var vErr *workbook.ValidationError
		var aggErr *domain.AggregationFailure
		switch {
		case errors.As(err, &vErr):
			middleware.WriteError(w, http.StatusBadRequest, vErr.Message)
		case errors.As(err, &aggErr):
			middleware.WriteError(w, http.StatusUnprocessableEntity, "Error processing file: "+aggErr.Error())
		default:
			h.log.Error().Err(err).Str("filename", filename).Msg("Failed to process upload")
			middleware.WriteError(w, http.StatusInternalServerError, "Error processing file")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, uploadResponse{
		Output:       out,
		ProcessedURL: "/api/downloads/" + out.ProcessedFile,
		ReportURL:    "/api/downloads/" + out.ReportFile,
	})
}

// ListUploads handles GET /api/uploads
func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	uploads, err := h.uploads.ListUploads(ctx, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list uploads")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list uploads")
		return
	}

	if uploads == nil {
		uploads = []domain.UploadLog{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}

// SanitizeFilename reduces a client-supplied name to a safe base name:
// path components are dropped, anything outside [A-Za-z0-9._-] becomes
// '_', and leading dots are removed. It returns "" when nothing is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndex(name, "/")+1:]

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(name), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return strings.TrimLeft(b.String(), "._")
}

// DownloadsHandler serves generated files from the upload directory.
type DownloadsHandler struct {
	uploadDir string
	log       zerolog.Logger
}

// NewDownloadsHandler creates a new downloads handler.
func NewDownloadsHandler(uploadDir string, log zerolog.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		uploadDir: uploadDir,
		log:       log,
	}
}

// Download handles GET /api/downloads/{name}. Anything that does not
// resolve to a regular file directly inside the upload directory is a 404.
func (h *DownloadsHandler) Download(w http.ResponseWriter, r *http.Request, name string) {
	path, ok := h.resolve(name)
	if !ok {
		h.log.Warn().Str("name", name).Msg("Rejected download")
		middleware.WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		middleware.WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name()+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *DownloadsHandler) resolve(name string) (string, bool) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}

	base, err := filepath.EvalSymlinks(h.uploadDir)
	if err != nil {
		return "", false
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return "", false
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(base, name))
	if err != nil {
		return "", false
	}
	if filepath.Dir(resolved) != base {
		return "", false
	}
	return resolved, true
}

// CustomersHandler handles customer endpoints.
type CustomersHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewCustomersHandler creates a new customers handler.
func NewCustomersHandler(s store.Store, log zerolog.Logger) *CustomersHandler {
	return &CustomersHandler{
		store: s,
		log:   log,
	}
}

// ListCustomers handles GET /api/customers
func (h *CustomersHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customers, err := h.store.AllCustomers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list customers")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}

	if customers == nil {
		customers = []domain.CustomerRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"count":     len(customers),
	})
}

// GetHistory handles GET /api/customers/{id}/history
func (h *CustomersHandler) GetHistory(w http.ResponseWriter, r *http.Request, customerID string) {
	ctx := r.Context()

	customer, err := h.store.Get(ctx, customerID)
	if err != nil {
		h.log.Error().Err(err).Str("customer_id", customerID).Msg("Failed to get customer")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get customer")
		return
	}
	if customer == nil {
		middleware.WriteError(w, http.StatusNotFound, "Customer not found")
		return
	}

	history, err := h.store.History(ctx, customerID)
	if err != nil {
		h.log.Error().Err(err).Str("customer_id", customerID).Msg("Failed to get history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}

	if history == nil {
		history = []domain.AddressChange{}
	}
	middleware.WriteJSON(w, http.StatusOK, domain.CustomerWithHistory{
		CustomerRecord: *customer,
		History:        history,
	})
}

// RunsHandler handles processing run endpoints.
type RunsHandler struct {
	store jobs.RunStore
	log   zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(s jobs.RunStore, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store: s,
		log:   log,
	}
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, runID string) {
	ctx := r.Context()

	run, err := h.store.GetRun(ctx, runID)
	if errors.Is(err, jobs.ErrRunNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.RunFilter{
		Status: jobs.RunStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListRuns(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
