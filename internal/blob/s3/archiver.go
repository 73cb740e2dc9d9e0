package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/export"
)

// RunArchiver uploads the artifacts of a finished scan run to object
// storage. Objects are keyed "runs/{yyyy-mm-dd}/{runID}.{csv,json}" so a
// bucket listing doubles as a run calendar.
type RunArchiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewRunArchiver creates a RunArchiver over the given blob writer.
func NewRunArchiver(writer domain.BlobWriter, logger *slog.Logger) *RunArchiver {
	return &RunArchiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveRun serializes the run to both CSV and JSON and uploads them.
// A failure on one artifact does not block the other; all failures are
// combined into the returned error.
func (a *RunArchiver) ArchiveRun(ctx context.Context, run domain.ScanRun, items []domain.ScrapedItem) error {
	day := run.StartedAt.UTC().Format("2006-01-02")
	var errs []error

	var csvBuf bytes.Buffer
	if err := export.WriteCSV(&csvBuf, items); err != nil {
		errs = append(errs, err)
	} else {
		key := fmt.Sprintf("runs/%s/%s.csv", day, run.ID)
		if err := a.writer.Put(ctx, key, csvBuf.Bytes(), "text/csv"); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Info("archived run artifact", slog.String("key", key))
		}
	}

	var jsonBuf bytes.Buffer
	if err := export.WriteJSON(&jsonBuf, run, items); err != nil {
		errs = append(errs, err)
	} else {
		key := fmt.Sprintf("runs/%s/%s.json", day, run.ID)
		if err := a.writer.Put(ctx, key, jsonBuf.Bytes(), "application/json"); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Info("archived run artifact", slog.String("key", key))
		}
	}

	if len(errs) > 0 {
		combined := errs[0]
		for _, err := range errs[1:] {
			combined = fmt.Errorf("%v; %w", combined, err)
		}
		return fmt.Errorf("s3blob: archive run %s: %w", run.ID, combined)
	}
	return nil
}
