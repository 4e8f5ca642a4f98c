package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CleanupStats reports the rows affected by one maintenance pass.
type CleanupStats struct {
	HTMLNulled      int64
	SnapshotsPruned int64
	PostingsExpired int64
}

// Cleanup performs database maintenance in a fixed order:
//  1. drop raw markup from all snapshots (text is retained),
//  2. prune snapshots to the single most recent per posting,
//  3. delete closed postings whose closing date (or, when absent, last-seen
//     time) is older than the expiry cutoff, cascading to their snapshots
//     and enrichment rows,
//  4. VACUUM to reclaim disk space.
//
// Open postings are never expired, no matter how old their closing date.
func (s *Store) Cleanup(ctx context.Context, expiryDays int) (CleanupStats, error) {
	var stats CleanupStats

	res, err := s.db.ExecContext(ctx,
		`UPDATE posting_snapshots SET content_html = NULL WHERE content_html IS NOT NULL`)
	if err != nil {
		return stats, fmt.Errorf("failed to null snapshot markup: %w", err)
	}
	stats.HTMLNulled, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM posting_snapshots
		 WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM (
				SELECT snapshot_id,
				       ROW_NUMBER() OVER (
				           PARTITION BY posting_id
				           ORDER BY fetched_at DESC, snapshot_id DESC
				       ) AS rn
				FROM posting_snapshots
			) WHERE rn = 1
		 )`)
	if err != nil {
		return stats, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	stats.SnapshotsPruned, _ = res.RowsAffected()

	expired, err := s.expirePostings(ctx, expiryDays)
	if err != nil {
		return stats, err
	}
	stats.PostingsExpired = expired

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return stats, fmt.Errorf("failed to vacuum: %w", err)
	}
	return stats, nil
}

func (s *Store) expirePostings(ctx context.Context, expiryDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -expiryDays)
	// closing_date is a bare date; last_seen_at is a full timestamp. Both
	// compare lexicographically against their matching cutoff format.
	cutoffDate := cutoff.UTC().Format(time.DateOnly)
	cutoffStamp := timestamp(cutoff)

	rows, err := s.db.QueryContext(ctx,
		`SELECT posting_id FROM postings
		 WHERE open_status = 'closed'
		   AND (
			(closing_date IS NOT NULL AND closing_date < ?)
			OR (closing_date IS NULL AND last_seen_at < ?)
		   )`, cutoffDate, cutoffStamp)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired postings: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan expired posting id: %w", err)
		}
		expired = append(expired, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin expiry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expired)), ",")
	args := make([]any, len(expired))
	for i, id := range expired {
		args[i] = id
	}
	for _, table := range []string{"enrichments", "posting_snapshots", "postings"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE posting_id IN (%s)", table, placeholders)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("failed to expire rows from %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return int64(len(expired)), nil
}
