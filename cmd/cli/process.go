package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/customer-insights/internal/api/handlers"
	"github.com/dvloznov/customer-insights/internal/app"
	"github.com/dvloznov/customer-insights/internal/gcsuploader"
	"github.com/dvloznov/customer-insights/internal/pipeline"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file.xlsx | gs://bucket/object.xlsx>",
		Short: "Reconcile a workbook and write the processed workbook and report",
		Long: `Process a customer workbook.

The workbook is copied into the upload directory, reconciled against the
customer store and aggregated. The processed workbook and the report are
written next to the copy.

Examples:
  insights process ./data/q1.xlsx
  insights process gs://my-bucket/exports/q1.xlsx --json`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name, data, err := readInput(ctx, a, args[0])
	if err != nil {
		return err
	}

	out, err := a.Processor.ProcessUpload(ctx, name, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("processing %s: %s", name, pipeline.UserMessage(err))
	}

	if jsonOutput {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run %s\n", out.RunID)
	for _, line := range out.Summary {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if len(out.Errors) > 0 {
		fmt.Fprintf(w, "\n%d row(s) rejected:\n", len(out.Errors))
		for _, rowErr := range out.Errors {
			fmt.Fprintf(w, "  %s\n", rowErr.Error())
		}
	}
	fmt.Fprintf(w, "\nProcessed workbook: %s\n", filepath.Join(a.Config.UploadDir, out.ProcessedFile))
	fmt.Fprintf(w, "Report:             %s\n", filepath.Join(a.Config.UploadDir, out.ReportFile))
	for _, uri := range out.ArchiveURIs {
		fmt.Fprintf(w, "Archived:           %s\n", uri)
	}
	return nil
}

// readInput loads src, a local path or a gs:// URI, and returns its
// sanitized base name with the contents.
func readInput(ctx context.Context, a *app.App, src string) (string, []byte, error) {
	var (
		name string
		data []byte
		err  error
	)

	if strings.HasPrefix(src, "gs://") {
		name = gcsuploader.ExtractFilenameFromGCSURI(src)
		data, err = fetchGCS(ctx, a, src)
	} else {
		name = filepath.Base(src)
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", src, err)
	}

	name = handlers.SanitizeFilename(name)
	if name == "" {
		return "", nil, fmt.Errorf("no usable filename in %q", src)
	}
	return name, data, nil
}

func fetchGCS(ctx context.Context, a *app.App, uri string) ([]byte, error) {
	if a.Storage != nil {
		return a.Storage.FetchFromGCS(ctx, uri)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	return gcsuploader.FetchFromGCSWithClient(ctx, client, uri)
}
