package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/dvloznov/customer-insights/internal/jobs"
	"github.com/dvloznov/customer-insights/internal/jobs/inmemory"
	"github.com/dvloznov/customer-insights/internal/pipeline"
	"github.com/dvloznov/customer-insights/internal/store/sqlite"
	"github.com/dvloznov/customer-insights/internal/workbook"
	"github.com/rs/zerolog"
)

// MockProcessor mocks Processor for testing
type MockProcessor struct {
	ProcessUploadFunc func(ctx context.Context, filename string, src io.Reader) (*pipeline.Output, error)
}

func (m *MockProcessor) ProcessUpload(ctx context.Context, filename string, src io.Reader) (*pipeline.Output, error) {
	return m.ProcessUploadFunc(ctx, filename, src)
}

// MockUploadLog mocks store.UploadLog for testing
type MockUploadLog struct {
	ListUploadsFunc func(ctx context.Context, limit int) ([]domain.UploadLog, error)
}

func (m *MockUploadLog) RecordUpload(ctx context.Context, entry domain.UploadLog) error {
	return nil
}

func (m *MockUploadLog) ListUploads(ctx context.Context, limit int) ([]domain.UploadLog, error) {
	return m.ListUploadsFunc(ctx, limit)
}

func multipartRequest(t *testing.T, field, filename string, body []byte) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(body)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestUploadsHandler_Upload(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		filename   string
		processErr error
		wantStatus int
		wantError  string
	}{
		{name: "success", field: "file", filename: "customers.xlsx", wantStatus: http.StatusOK},
		{name: "missing file part", field: "upload", filename: "customers.xlsx", wantStatus: http.StatusBadRequest, wantError: "No file part"},
		{name: "wrong extension", field: "file", filename: "customers.csv", wantStatus: http.StatusBadRequest, wantError: "Invalid file type. Please upload an Excel file (.xlsx or .xls)"},
		{name: "nothing left after sanitizing", field: "file", filename: "...", wantStatus: http.StatusBadRequest, wantError: "No selected file"},
		{
			name:       "validation error",
			field:      "file",
			filename:   "customers.xlsx",
			processErr: &workbook.ValidationError{Message: "Missing sheets: Products"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing sheets: Products",
		},
		{
			name:       "aggregation failure",
			field:      "file",
			filename:   "customers.xlsx",
			processErr: &domain.AggregationFailure{Stage: "decode transactions", Err: errors.New("bad date")},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "Error processing file: aggregation failed at decode transactions: bad date",
		},
		{name: "store error", field: "file", filename: "customers.xlsx", processErr: errors.New("disk I/O"), wantStatus: http.StatusInternalServerError, wantError: "Error processing file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName, gotBody string
			processor := &MockProcessor{
				ProcessUploadFunc: func(ctx context.Context, filename string, src io.Reader) (*pipeline.Output, error) {
					gotName = filename
					body, _ := io.ReadAll(src)
					gotBody = string(body)
					if tt.processErr != nil {
						return nil, tt.processErr
					}
					return &pipeline.Output{
						RunID:         "run-1",
						Filename:      "customers.xlsx",
						ProcessedFile: "processed_customers.xlsx",
						ReportFile:    "report_customers.docx",
						Summary:       []string{"Total customers: 2"},
						Errors:        []domain.RowError{{Row: 2, CustomerID: "C9", Message: "missing braces"}},
					}, nil
				},
			}
			h := NewUploadsHandler(processor, nil, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Upload(rec, multipartRequest(t, tt.field, tt.filename, []byte("xlsx bytes")))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				return
			}

			if gotName != "customers.xlsx" || gotBody != "xlsx bytes" {
				t.Errorf("processor got %q with body %q", gotName, gotBody)
			}
			if body["run_id"] != "run-1" || body["report_url"] != "/api/downloads/report_customers.docx" {
				t.Errorf("unexpected body: %v", body)
			}
			if errs, _ := body["errors"].([]interface{}); len(errs) != 1 {
				t.Errorf("expected row errors in response, got %v", body["errors"])
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customers.xlsx", "customers.xlsx"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\ann\Q1 data.xlsx`, "Q1_data.xlsx"},
		{"my file (final).xlsx", "my_file__final_.xlsx"},
		{".hidden.xlsx", "hidden.xlsx"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadsHandler_ListUploads(t *testing.T) {
	var gotLimit int
	uploads := &MockUploadLog{
		ListUploadsFunc: func(ctx context.Context, limit int) ([]domain.UploadLog, error) {
			gotLimit = limit
			return []domain.UploadLog{{Filename: "a.xlsx", Timestamp: time.Now()}}, nil
		},
	}
	h := NewUploadsHandler(nil, uploads, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListUploads(rec, httptest.NewRequest(http.MethodGet, "/api/uploads?limit=5", nil))

	if rec.Code != http.StatusOK || gotLimit != 5 {
		t.Fatalf("status=%d limit=%d", rec.Code, gotLimit)
	}
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestDownloadsHandler_Download(t *testing.T) {
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	if err := os.Mkdir(uploadDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(uploadDir, "report_customers.docx"), []byte("docx"), 0o644)
	os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644)
	os.Mkdir(filepath.Join(uploadDir, "subdir"), 0o755)
	symlinkErr := os.Symlink(filepath.Join(root, "secret.txt"), filepath.Join(uploadDir, "escape.txt"))

	h := NewDownloadsHandler(uploadDir, zerolog.Nop())

	tests := []struct {
		name       string
		file       string
		wantStatus int
	}{
		{name: "existing file", file: "report_customers.docx", wantStatus: http.StatusOK},
		{name: "missing file", file: "nope.xlsx", wantStatus: http.StatusNotFound},
		{name: "parent traversal", file: "../secret.txt", wantStatus: http.StatusNotFound},
		{name: "dot dot", file: "..", wantStatus: http.StatusNotFound},
		{name: "directory", file: "subdir", wantStatus: http.StatusNotFound},
		{name: "symlink out of dir", file: "escape.txt", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.file == "escape.txt" && symlinkErr != nil {
				t.Skipf("symlinks unavailable: %v", symlinkErr)
			}
			rec := httptest.NewRecorder()
			h.Download(rec, httptest.NewRequest(http.MethodGet, "/api/downloads/x", nil), tt.file)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if rec.Body.String() != "docx" {
					t.Errorf("body = %q", rec.Body.String())
				}
				if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="report_customers.docx"` {
					t.Errorf("Content-Disposition = %q", cd)
				}
			}
		})
	}
}

func TestCustomersHandler(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "customers.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Upsert(ctx, domain.CustomerRecord{CustomerID: "C1", Name: "Ann", Address: "B", CreatedAt: now, LastUpdated: now}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendChange(ctx, domain.AddressChange{CustomerID: "C1", OldAddress: "A", NewAddress: "B", ChangedAt: now}); err != nil {
		t.Fatal(err)
	}

	h := NewCustomersHandler(s, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListCustomers(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))
	if body := decodeBody(t, rec); rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("list: status=%d body=%v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest(http.MethodGet, "/api/customers/C1/history", nil), "C1")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status=%d", rec.Code)
	}
	body := decodeBody(t, rec)
	history, _ := body["address_history"].([]interface{})
	if body["customer_id"] != "C1" || len(history) != 1 {
		t.Errorf("unexpected history body: %v", body)
	}

	rec = httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest(http.MethodGet, "/api/customers/C404/history", nil), "C404")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown customer: status=%d, want 404", rec.Code)
	}
}

func TestRunsHandler(t *testing.T) {
	ctx := context.Background()
	runs := inmemory.NewStore()
	_ = runs.SaveRun(ctx, &jobs.Run{RunID: "r1", Status: jobs.RunStatusCompleted, CreatedAt: time.Now()})
	_ = runs.SaveRun(ctx, &jobs.Run{RunID: "r2", Status: jobs.RunStatusFailed, CreatedAt: time.Now()})

	h := NewRunsHandler(runs, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?status=failed", nil))
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("unexpected list body: %v", body)
	}

	rec = httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil), "r1")
	if body := decodeBody(t, rec); rec.Code != http.StatusOK || body["status"] != "completed" {
		t.Errorf("get: status=%d body=%v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), "nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run: status=%d, want 404", rec.Code)
	}
}
