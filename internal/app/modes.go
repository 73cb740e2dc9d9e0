package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/export"
	"github.com/alanyoungcy/niftyarb/internal/notify"
)

// ScanMode executes a single full scan and writes local export artifacts.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	result, err := deps.Pipeline.RunScan(ctx)
	if len(result.Items) > 0 {
		if werr := a.writeArtifacts(result.Run, result.Items); werr != nil {
			a.logger.Warn("local export failed", slog.Any("error", werr))
		}
	}
	return err
}

// WatchMode runs repeated scans separated by the configured interval until the
// context is cancelled. A failed sweep is reported and the loop continues; only
// cancellation ends the mode.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Scan.WatchInterval.Duration
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Duration("interval", interval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var totalItems, totalOpportunities int
		for sweep := 1; ; sweep++ {
			result, err := deps.Pipeline.RunScan(ctx)
			if len(result.Items) > 0 {
				if werr := a.writeArtifacts(result.Run, result.Items); werr != nil {
					a.logger.Warn("local export failed", slog.Any("error", werr))
				}
			}
			totalItems += len(result.Items)
			totalOpportunities += result.Run.Opportunities
			a.logger.Info("sweep finished",
				slog.Int("sweep", sweep),
				slog.Int("total_items", totalItems),
				slog.Int("total_opportunities", totalOpportunities))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Error("sweep failed",
					slog.Int("sweep", sweep),
					slog.Any("error", err))
				a.notifyError(ctx, deps, sweep, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

// ExportMode re-exports the most recent persisted run as local artifacts
// without touching the marketplace or any API.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting export mode")

	run, err := deps.Runs.LatestRun(ctx)
	if err != nil {
		return fmt.Errorf("app: latest run: %w", err)
	}
	items, err := deps.Items.ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("app: list run items: %w", err)
	}
	a.logger.InfoContext(ctx, "exporting persisted run",
		slog.String("run_id", run.ID),
		slog.Int("items", len(items)))
	return a.writeArtifacts(run, items)
}

// writeArtifacts writes the configured export formats into the export
// directory. All formats are attempted; the first failure is returned.
func (a *App) writeArtifacts(run domain.ScanRun, items []domain.ScrapedItem) error {
	dir := a.cfg.Scan.ExportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: create export dir: %w", err)
	}

	var firstErr error
	for _, format := range a.cfg.Scan.ExportFormats {
		var buf bytes.Buffer
		var err error
		switch format {
		case "csv":
			err = export.WriteCSV(&buf, items)
		case "json":
			err = export.WriteJSON(&buf, run, items)
		default:
			a.logger.Warn("unknown export format", slog.String("format", format))
			continue
		}
		if err == nil {
			path := filepath.Join(dir, export.Filename("niftyarb", format, run.StartedAt))
			err = os.WriteFile(path, buf.Bytes(), 0o644)
			if err == nil {
				a.logger.Info("wrote export artifact", slog.String("path", path))
			}
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("app: export %s: %w", format, err)
			}
			a.logger.Warn("export artifact failed",
				slog.String("format", format),
				slog.Any("error", err))
		}
	}
	return firstErr
}

func (a *App) notifyError(ctx context.Context, deps *Dependencies, sweep int, err error) {
	if deps.Notifier == nil {
		return
	}
	msg := notify.Message{
		Event: notify.EventError,
		Title: "Sweep failed",
		Body:  fmt.Sprintf("Sweep %d failed: %v", sweep, err),
	}
	if nerr := deps.Notifier.Notify(ctx, msg); nerr != nil {
		a.logger.Warn("error notification failed", slog.Any("error", nerr))
	}
}
