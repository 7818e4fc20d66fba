package gcsuploader

import (
	"context"
	"time"
)

// StorageService archives run files and fetches workbooks from a bucket.
// This interface enables mocking of storage in pipeline and CLI tests.
type StorageService interface {
	// ArchiveRun copies local files under runs/<date>/<runID>/ and returns
	// their gs:// URIs.
	ArchiveRun(ctx context.Context, runID string, at time.Time, filePaths ...string) ([]string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

var _ StorageService = (*GCSStorageService)(nil)
