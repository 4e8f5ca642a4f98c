package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonathan/scholarwatch/internal/types"
)

// CachedEnrichment looks up an enrichment by task type and input hash, or
// returns nil on a cache miss. Entries are immutable: identical inputs
// always resolve to the same stored output.
func (s *Store) CachedEnrichment(ctx context.Context, task types.TaskType, inputHash string) (*types.Enrichment, error) {
	var (
		e         types.Enrichment
		taskStr   string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT enrichment_id, posting_id, task_type, prompt_version, model_id,
		        input_hash, output_json, created_at
		 FROM enrichments
		 WHERE task_type = ? AND input_hash = ?`,
		string(task), inputHash,
	).Scan(&e.EnrichmentID, &e.PostingID, &taskStr, &e.PromptVersion,
		&e.ModelID, &e.InputHash, &e.OutputJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s enrichment: %w", task, err)
	}
	e.TaskType = types.TaskType(taskStr)
	e.CreatedAt = parseTimestamp(createdAt)
	return &e, nil
}

// InsertEnrichment stores a provider result. The (task_type, input_hash)
// uniqueness constraint makes a concurrent duplicate insert a no-op replace
// with identical content.
func (s *Store) InsertEnrichment(ctx context.Context, e types.Enrichment) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO enrichments
		 (posting_id, task_type, prompt_version, model_id, input_hash, output_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.PostingID, string(e.TaskType), e.PromptVersion, e.ModelID,
		e.InputHash, e.OutputJSON, timestamp(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s enrichment for %s: %w", e.TaskType, e.PostingID, err)
	}
	return res.LastInsertId()
}
