package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonathan/scholarwatch/internal/types"
)

// InsertSnapshot stores a content snapshot and returns its id. Callers are
// expected to check LatestSnapshotHash first: snapshots form a change-log,
// not a duplicate-per-fetch log.
func (s *Store) InsertSnapshot(ctx context.Context, snap types.Snapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posting_snapshots (posting_id, content_text, content_html, content_hash, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.PostingID, nullStr(snap.ContentText), nullStr(snap.ContentHTML),
		snap.ContentHash, timestamp(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot for %s: %w", snap.PostingID, err)
	}
	return res.LastInsertId()
}

// LatestSnapshotHash returns the content hash of the most recent snapshot
// for a posting, or "" when none exists.
func (s *Store) LatestSnapshotHash(ctx context.Context, postingID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM posting_snapshots
		 WHERE posting_id = ?
		 ORDER BY fetched_at DESC, snapshot_id DESC LIMIT 1`, postingID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest snapshot hash for %s: %w", postingID, err)
	}
	return hash, nil
}

// LatestSnapshotText returns the text of the most recent snapshot for a
// posting, or "" when none exists.
func (s *Store) LatestSnapshotText(ctx context.Context, postingID string) (string, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT content_text FROM posting_snapshots
		 WHERE posting_id = ?
		 ORDER BY fetched_at DESC, snapshot_id DESC LIMIT 1`, postingID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest snapshot text for %s: %w", postingID, err)
	}
	return text.String, nil
}

// SnapshotCount returns how many snapshots a posting has.
func (s *Store) SnapshotCount(ctx context.Context, postingID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posting_snapshots WHERE posting_id = ?`, postingID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots for %s: %w", postingID, err)
	}
	return n, nil
}
