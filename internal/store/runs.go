package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one persisted batch-run summary.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Fetched         int
	Saved           int
	Skipped         int
	Matched         int
	ActionsOK       int
	ActionsFailed   int
	ActionsNotFound int
	Note            string
}

// SaveRun records a finished run. A run without an ID gets a fresh UUID.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at,
			fetched, saved, skipped, matched,
			actions_ok, actions_failed, actions_not_found, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Fetched, run.Saved, run.Skipped, run.Matched,
		run.ActionsOK, run.ActionsFailed, run.ActionsNotFound, run.Note,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to n runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, started_at, finished_at,
			fetched, saved, skipped, matched,
			actions_ok, actions_failed, actions_not_found, note
		FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt,
			&run.Fetched, &run.Saved, &run.Skipped, &run.Matched,
			&run.ActionsOK, &run.ActionsFailed, &run.ActionsNotFound, &run.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
