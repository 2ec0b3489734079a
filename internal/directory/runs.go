package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Run is the persisted summary of one scheduled batch.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Failed     int
	Skipped    int
	Failures   map[string]int
}

func (s *Store) RecordRun(ctx context.Context, r Run) error {
	failures := r.Failures
	if failures == nil {
		failures = map[string]int{}
	}
	raw, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("could not encode failures of run %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (id, started_at, finished_at, succeeded, failed, skipped, failures_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			failures_json = excluded.failures_json`,
		r.ID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Succeeded, r.Failed, r.Skipped, string(raw))
	if err != nil {
		return fmt.Errorf("could not record run %s: %w", r.ID, err)
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, succeeded, failed, skipped, failures_json
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			failuresJSON      string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Succeeded, &r.Failed, &r.Skipped, &failuresJSON); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		if err := json.Unmarshal([]byte(failuresJSON), &r.Failures); err != nil {
			return nil, fmt.Errorf("bad failures_json on run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
