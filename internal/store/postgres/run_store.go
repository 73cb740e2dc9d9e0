package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// CreateRun records a run at the moment it starts.
func (s *RunStore) CreateRun(ctx context.Context, run domain.ScanRun) error {
	const query = `
		INSERT INTO scan_runs (id, start_url, started_at)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, query, run.ID, run.StartURL, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun writes the final counters for a completed run.
func (s *RunStore) FinishRun(ctx context.Context, run domain.ScanRun) error {
	const query = `
		UPDATE scan_runs SET
			finished_at     = $2,
			reference_cnt   = $3,
			admitted_cnt    = $4,
			skipped_cnt     = $5,
			failed_cnt      = $6,
			opportunity_cnt = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt,
		run.References, run.Admitted, run.Skipped, run.Failed, run.Opportunities,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *RunStore) LatestRun(ctx context.Context) (domain.ScanRun, error) {
	const query = `
		SELECT id, start_url, started_at, COALESCE(finished_at, 'epoch'::timestamptz),
		       reference_cnt, admitted_cnt, skipped_cnt, failed_cnt, opportunity_cnt
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT 1`

	var run domain.ScanRun
	err := s.pool.QueryRow(ctx, query).Scan(
		&run.ID, &run.StartURL, &run.StartedAt, &run.FinishedAt,
		&run.References, &run.Admitted, &run.Skipped, &run.Failed, &run.Opportunities,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanRun{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ScanRun{}, fmt.Errorf("postgres: latest run: %w", err)
	}
	return run, nil
}

// Compile-time interface check.
var _ domain.RunStore = (*RunStore)(nil)
