package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/scholarwatch/internal/types"
)

const postingColumns = `posting_id, url_canonical, url_original, source_id, job_title,
	institution, department, city, country, language, contract_type, fte,
	salary_min, salary_max, currency, closing_date, interview_date, topic_tags,
	rank_bucket, rank_source, relevance_score, seniority_match,
	relevance_rationale, synopsis, open_status, first_seen_at, last_seen_at,
	emailed_at, created_at, updated_at`

// UpsertPosting inserts a posting or merges it into the existing record with
// fill-forward semantics: present fields overwrite, missing fields never
// erase existing data. Status only advances (closed stays closed) and
// last-seen always moves forward. Returns true when a new row was created.
func (s *Store) UpsertPosting(ctx context.Context, p types.Posting) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT posting_id FROM postings WHERE posting_id = ?`, p.PostingID,
	).Scan(&existing)

	now := timestamp(s.now())
	isNew := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isNew {
		return false, fmt.Errorf("failed to check posting %s: %w", p.PostingID, err)
	}

	tags, err := encodeStrings(p.TopicTags)
	if err != nil {
		return false, err
	}

	if isNew {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO postings (`+postingColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.PostingID, p.URLCanonical, p.URLOriginal, p.SourceID,
			nullStr(p.JobTitle), nullStr(p.Institution), nullStr(p.Department),
			nullStr(p.City), nullStr(p.Country), orDefault(p.Language, "en"),
			nullStr(p.ContractType), nullFloat(p.FTE), nullFloat(p.SalaryMin),
			nullFloat(p.SalaryMax), nullStr(p.Currency), nullStr(p.ClosingDate),
			nullStr(p.InterviewDate), nullStr(tags), nullStr(string(p.RankBucket)),
			orDefault(string(p.RankSource), string(types.RankSourceRules)),
			nil, boolInt(p.SeniorityMatch), nil, nil,
			orDefault(string(p.OpenStatus), string(types.StatusOpen)),
			now, now, nil, now, now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert posting %s: %w", p.PostingID, err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE postings SET
				url_original  = ?,
				job_title     = COALESCE(?, job_title),
				institution   = COALESCE(?, institution),
				language      = COALESCE(?, language),
				closing_date  = COALESCE(?, closing_date),
				topic_tags    = COALESCE(?, topic_tags),
				rank_bucket   = COALESCE(?, rank_bucket),
				rank_source   = COALESCE(?, rank_source),
				open_status   = CASE WHEN open_status = 'closed' THEN 'closed' ELSE ? END,
				last_seen_at  = ?,
				updated_at    = ?
			 WHERE posting_id = ?`,
			p.URLOriginal,
			nullStr(p.JobTitle), nullStr(p.Institution), nullStr(p.Language),
			nullStr(p.ClosingDate), nullStr(tags),
			nullStr(string(p.RankBucket)), nullStr(string(p.RankSource)),
			orDefault(string(p.OpenStatus), string(types.StatusOpen)),
			now, now, p.PostingID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update posting %s: %w", p.PostingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return isNew, nil
}

// ApplyUpdate merges a typed partial update into a posting, field by field.
// Nil fields are left untouched; status only advances toward closed.
func (s *Store) ApplyUpdate(ctx context.Context, postingID string, u *types.PostingUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	var tags any
	if u.TopicTags != nil {
		encoded, err := encodeStrings(u.TopicTags)
		if err != nil {
			return err
		}
		tags = encoded
	}

	status := nullStatus(u.OpenStatus)
	_, err := s.db.ExecContext(ctx,
		`UPDATE postings SET
			job_title           = COALESCE(?, job_title),
			institution         = COALESCE(?, institution),
			department          = COALESCE(?, department),
			city                = COALESCE(?, city),
			country             = COALESCE(?, country),
			language            = COALESCE(?, language),
			contract_type       = COALESCE(?, contract_type),
			fte                 = COALESCE(?, fte),
			salary_min          = COALESCE(?, salary_min),
			salary_max          = COALESCE(?, salary_max),
			currency            = COALESCE(?, currency),
			closing_date        = COALESCE(?, closing_date),
			interview_date      = COALESCE(?, interview_date),
			topic_tags          = COALESCE(?, topic_tags),
			rank_bucket         = COALESCE(?, rank_bucket),
			rank_source         = COALESCE(?, rank_source),
			relevance_score     = COALESCE(?, relevance_score),
			seniority_match     = COALESCE(?, seniority_match),
			relevance_rationale = COALESCE(?, relevance_rationale),
			synopsis            = COALESCE(?, synopsis),
			open_status         = CASE
				WHEN open_status = 'closed' THEN 'closed'
				ELSE COALESCE(?, open_status)
			END,
			updated_at          = ?
		 WHERE posting_id = ?`,
		strPtr(u.JobTitle), strPtr(u.Institution), strPtr(u.Department),
		strPtr(u.City), strPtr(u.Country), strPtr(u.Language),
		strPtr(u.ContractType), u.FTE, u.SalaryMin, u.SalaryMax,
		strPtr(u.Currency), strPtr(u.ClosingDate), strPtr(u.InterviewDate),
		tags, rankPtr(u.RankBucket), rankSourcePtr(u.RankSource),
		u.RelevanceScore, boolPtr(u.SeniorityMatch),
		strPtr(u.RelevanceRationale), strPtr(u.Synopsis),
		status, timestamp(s.now()), postingID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply update to posting %s: %w", postingID, err)
	}
	return nil
}

// GetPosting fetches a single posting, or nil when it does not exist.
func (s *Store) GetPosting(ctx context.Context, postingID string) (*types.Posting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE posting_id = ?`, postingID)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get posting %s: %w", postingID, err)
	}
	return p, nil
}

// AllPostingIDs returns the set of persisted posting identities.
func (s *Store) AllPostingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT posting_id FROM postings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posting ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan posting id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// PostingsNeedingEnrichment returns postings with no cache entry for the
// given task, most recently seen first. Task eligibility is part of the
// query: postings a task can never apply to (English postings for the
// synopsis, rule-ranked postings for the rank fallback) are excluded so
// they do not occupy the bounded selection window.
func (s *Store) PostingsNeedingEnrichment(ctx context.Context, task types.TaskType, limit int) ([]types.Posting, error) {
	query := `SELECT ` + postingColumns + ` FROM postings p
		 WHERE p.posting_id NOT IN (
			SELECT e.posting_id FROM enrichments e WHERE e.task_type = ?
		 )`
	args := []any{string(task)}
	switch task {
	case types.TaskSynopsis:
		query += ` AND lower(p.language) <> 'en'`
	case types.TaskRankFallback:
		query += ` AND p.rank_bucket = ? AND p.rank_source = ?`
		args = append(args, string(types.RankOther), string(types.RankSourceRules))
	}
	query += `
		 ORDER BY p.last_seen_at DESC
		 LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings needing %s: %w", task, err)
	}
	return collectPostings(rows)
}

// OpenPostings returns open postings for verification, most recently
// seen first.
func (s *Store) OpenPostings(ctx context.Context, limit int) ([]types.Posting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE open_status = 'open'
		 ORDER BY last_seen_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open postings: %w", err)
	}
	return collectPostings(rows)
}

// PostingsForDigest returns not-yet-emailed, open, scored postings ordered
// by relevance descending.
func (s *Store) PostingsForDigest(ctx context.Context, limit int) ([]types.Posting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE emailed_at IS NULL
		   AND open_status = 'open'
		   AND relevance_score IS NOT NULL
		 ORDER BY relevance_score DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query digest postings: %w", err)
	}
	return collectPostings(rows)
}

// MarkEmailed stamps the emailed-at time on the given postings in one
// transaction.
func (s *Store) MarkEmailed(ctx context.Context, postingIDs []string) error {
	if len(postingIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mark-emailed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(s.now())
	for _, id := range postingIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE postings SET emailed_at = ? WHERE posting_id = ?`, now, id); err != nil {
			return fmt.Errorf("failed to mark posting %s emailed: %w", id, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (*types.Posting, error) {
	var (
		p                                                  types.Posting
		jobTitle, institution, department, city, country   sql.NullString
		contractType, currency, closingDate, interviewDate sql.NullString
		topicTags, rankBucket, relevanceRationale          sql.NullString
		synopsis, emailedAt                                sql.NullString
		fte, salaryMin, salaryMax, relevanceScore          sql.NullFloat64
		seniorityMatch                                     int
		rankSource, openStatus                             string
		firstSeen, lastSeen, createdAt, updatedAt          string
	)
	err := row.Scan(
		&p.PostingID, &p.URLCanonical, &p.URLOriginal, &p.SourceID, &jobTitle,
		&institution, &department, &city, &country, &p.Language, &contractType,
		&fte, &salaryMin, &salaryMax, &currency, &closingDate, &interviewDate,
		&topicTags, &rankBucket, &rankSource, &relevanceScore, &seniorityMatch,
		&relevanceRationale, &synopsis, &openStatus, &firstSeen, &lastSeen,
		&emailedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.JobTitle = jobTitle.String
	p.Institution = institution.String
	p.Department = department.String
	p.City = city.String
	p.Country = country.String
	p.ContractType = contractType.String
	p.FTE = fte.Float64
	p.SalaryMin = salaryMin.Float64
	p.SalaryMax = salaryMax.Float64
	p.Currency = currency.String
	p.ClosingDate = closingDate.String
	p.InterviewDate = interviewDate.String
	p.RankBucket = types.RankBucket(rankBucket.String)
	p.RankSource = types.RankSource(rankSource)
	p.RelevanceScore = relevanceScore.Float64
	p.HasRelevance = relevanceScore.Valid
	p.SeniorityMatch = seniorityMatch != 0
	p.RelevanceRationale = relevanceRationale.String
	p.Synopsis = synopsis.String
	p.OpenStatus = types.OpenStatus(openStatus)
	p.FirstSeenAt = parseTimestamp(firstSeen)
	p.LastSeenAt = parseTimestamp(lastSeen)
	p.EmailedAt = parseTimestamp(emailedAt.String)
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)

	if topicTags.Valid {
		tags, err := decodeStrings(topicTags.String)
		if err != nil {
			return nil, fmt.Errorf("posting %s has corrupt topic tags: %w", p.PostingID, err)
		}
		p.TopicTags = tags
	}
	return &p, nil
}

func collectPostings(rows *sql.Rows) ([]types.Posting, error) {
	defer func() { _ = rows.Close() }()
	var postings []types.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

// nullStr binds NULL for empty strings so COALESCE fill-forward works.
func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func strPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolPtr(p *bool) any {
	if p == nil {
		return nil
	}
	return boolInt(*p)
}

func rankPtr(p *types.RankBucket) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func rankSourcePtr(p *types.RankSource) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func nullStatus(p *types.OpenStatus) any {
	if p == nil {
		return nil
	}
	return string(*p)
}
