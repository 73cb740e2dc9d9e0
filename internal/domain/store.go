package domain

import "context"

// RunStore persists scan-run records.
type RunStore interface {
	CreateRun(ctx context.Context, run ScanRun) error
	FinishRun(ctx context.Context, run ScanRun) error
	LatestRun(ctx context.Context) (ScanRun, error)
}

// ItemStore persists the scraped items admitted by a run.
type ItemStore interface {
	InsertBatch(ctx context.Context, runID string, items []ScrapedItem) error
	ListByRun(ctx context.Context, runID string) ([]ScrapedItem, error)
}
