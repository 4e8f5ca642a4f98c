// Package verify re-checks stored open postings against their live
// pages: it detects removed or filled listings, fills in closing dates
// found in page text, and snapshots content changes.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/fetch"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/ratelimit"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
)

// Fetcher retrieves a URL. Satisfied by *fetch.Client.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Result, error)
}

// Verifier walks open postings and reconciles them with their pages.
type Verifier struct {
	store   *store.Store
	fetcher Fetcher
	limiter *ratelimit.Limiter
	cfg     *config.Config
	log     zerolog.Logger
	now     func() time.Time
}

// New builds a verifier.
func New(st *store.Store, fetcher Fetcher, limiter *ratelimit.Limiter, cfg *config.Config) *Verifier {
	return &Verifier{
		store:   st,
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		log:     logging.Component("verify"),
		now:     time.Now,
	}
}

// Stats summarizes one verification pass.
type Stats struct {
	Checked   int
	Closed    int
	Snapshots int
	// Errors holds one message per posting that could not be
	// verified. A failing posting never aborts the pass.
	Errors []string
}

// Run verifies up to the configured limit of open postings, most
// recently seen first.
func (v *Verifier) Run(ctx context.Context) (*Stats, error) {
	postings, err := v.store.OpenPostings(ctx, v.cfg.VerifyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load open postings: %w", err)
	}

	stats := &Stats{}
	for i := range postings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p := &postings[i]
		stats.Checked++

		interval := time.Duration(v.cfg.SourceInterval(p.SourceID) * float64(time.Second))
		v.limiter.Wait(p.SourceID, interval)

		closed, snapshotted, err := v.verifyOne(ctx, p)
		if err != nil {
			v.limiter.RecordError(p.SourceID, time.Second)
			stats.Errors = append(stats.Errors, fmt.Sprintf("posting %s: %v", p.PostingID, err))
			v.log.Warn().Str("posting_id", p.PostingID).Err(err).Msg("verification failed")
			continue
		}
		v.limiter.RecordSuccess(p.SourceID)
		if closed {
			stats.Closed++
		}
		if snapshotted {
			stats.Snapshots++
		}
	}

	v.log.Info().
		Int("checked", stats.Checked).
		Int("closed", stats.Closed).
		Int("snapshots", stats.Snapshots).
		Int("errors", len(stats.Errors)).
		Msg("verification pass done")
	return stats, nil
}

// verifyOne checks a single posting. It reports whether the posting was
// closed and whether a new snapshot was stored.
func (v *Verifier) verifyOne(ctx context.Context, p *types.Posting) (closed, snapshotted bool, err error) {
	res, err := v.fetcher.Get(ctx, p.URLCanonical)
	if err != nil {
		return false, false, err
	}

	if res.NotFound() {
		if err := v.close(ctx, p, "page gone"); err != nil {
			return false, false, err
		}
		return true, false, nil
	}
	if res.StatusCode != 200 {
		return false, false, fmt.Errorf("HTTP %d", res.StatusCode)
	}

	text, err := fetch.ExtractText(res.Body, fetch.PostingSelectors())
	if err != nil {
		return false, false, err
	}

	update := &types.PostingUpdate{}

	if phrase := v.matchClosedPhrase(text); phrase != "" {
		st := types.StatusClosed
		update.OpenStatus = &st
		closed = true
		v.log.Info().Str("posting_id", p.PostingID).Str("phrase", phrase).Msg("posting closed")
	}

	closingDate := p.ClosingDate
	if closingDate == "" {
		if found := ExtractClosingDate(text, v.cfg.Verify.ClosingKeywords, v.cfg.Verify.WindowSize); found != "" {
			closingDate = found
			update.ClosingDate = &found
		}
	}
	if !closed && closingDate != "" && closingDate < v.now().UTC().Format(time.DateOnly) {
		st := types.StatusClosed
		update.OpenStatus = &st
		closed = true
		v.log.Info().Str("posting_id", p.PostingID).Str("closing_date", closingDate).Msg("closing date elapsed")
	}

	if !update.IsEmpty() {
		if err := v.store.ApplyUpdate(ctx, p.PostingID, update); err != nil {
			return false, false, err
		}
	}

	snapshotted, err = v.snapshotIfChanged(ctx, p.PostingID, text)
	if err != nil {
		return closed, false, err
	}
	return closed, snapshotted, nil
}

// matchClosedPhrase returns the first configured closed phrase present
// in the page text, or "".
func (v *Verifier) matchClosedPhrase(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range v.cfg.Verify.ClosedPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}

// snapshotIfChanged stores a new snapshot when the text hash differs
// from the latest stored one. Verification snapshots hold extracted text
// only; raw markup is kept solely when an adapter delivers it at ingest.
func (v *Verifier) snapshotIfChanged(ctx context.Context, postingID, text string) (bool, error) {
	hash := ContentHash(text)
	latest, err := v.store.LatestSnapshotHash(ctx, postingID)
	if err != nil {
		return false, err
	}
	if latest == hash {
		return false, nil
	}
	_, err = v.store.InsertSnapshot(ctx, types.Snapshot{
		PostingID:   postingID,
		ContentText: text,
		ContentHash: hash,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (v *Verifier) close(ctx context.Context, p *types.Posting, reason string) error {
	st := types.StatusClosed
	v.log.Info().Str("posting_id", p.PostingID).Str("reason", reason).Msg("posting closed")
	return v.store.ApplyUpdate(ctx, p.PostingID, &types.PostingUpdate{OpenStatus: &st})
}

// ContentHash is the SHA-256 hex digest of the extracted page text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
