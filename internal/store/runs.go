package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonathan/scholarwatch/internal/types"
)

// StartRun appends a running pipeline-run audit record and returns its id.
// runKey is a correlation token carried through logs for this invocation.
func (s *Store) StartRun(ctx context.Context, runKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_key, started_at, status) VALUES (?, ?, ?)`,
		runKey, timestamp(s.now()), string(types.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start pipeline run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun records a run's final status, counters, error list, and metadata.
func (s *Store) FinishRun(ctx context.Context, runID int64, status types.RunStatus, stats types.RunStats, errList []string, metadata map[string]string) error {
	errsBlob, err := encodeStrings(errList)
	if err != nil {
		return err
	}
	metaBlob, err := encodeStringMap(metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET
			finished_at      = ?,
			status           = ?,
			postings_found   = ?,
			postings_new     = ?,
			postings_updated = ?,
			enrichments_made = ?,
			emails_sent      = ?,
			errors           = ?,
			run_metadata     = ?
		 WHERE run_id = ?`,
		timestamp(s.now()), string(status),
		stats.PostingsFound, stats.PostingsNew, stats.PostingsUpdated,
		stats.EnrichmentsMade, stats.EmailsSent,
		nullStr(errsBlob), nullStr(metaBlob), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish pipeline run %d: %w", runID, err)
	}
	return nil
}

// LatestRun returns the most recent pipeline run record, or nil when the
// audit log is empty.
func (s *Store) LatestRun(ctx context.Context) (*types.PipelineRun, error) {
	var (
		r                    types.PipelineRun
		started              string
		finished, errs, meta sql.NullString
		status               string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, run_key, started_at, finished_at, status,
		        postings_found, postings_new, postings_updated,
		        enrichments_made, emails_sent, errors, run_metadata
		 FROM pipeline_runs
		 ORDER BY started_at DESC, run_id DESC LIMIT 1`,
	).Scan(&r.RunID, &r.RunKey, &started, &finished, &status,
		&r.Stats.PostingsFound, &r.Stats.PostingsNew, &r.Stats.PostingsUpdated,
		&r.Stats.EnrichmentsMade, &r.Stats.EmailsSent, &errs, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	r.StartedAt = parseTimestamp(started)
	r.FinishedAt = parseTimestamp(finished.String)
	r.Status = types.RunStatus(status)
	if errs.Valid {
		if r.Errors, err = decodeStrings(errs.String); err != nil {
			return nil, fmt.Errorf("run %d has corrupt error list: %w", r.RunID, err)
		}
	}
	if meta.Valid {
		if r.Metadata, err = decodeStringMap(meta.String); err != nil {
			return nil, fmt.Errorf("run %d has corrupt metadata: %w", r.RunID, err)
		}
	}
	return &r, nil
}
