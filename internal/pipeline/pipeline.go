// Package pipeline orchestrates one ingestion run: collect postings
// from the sources, normalize and deduplicate them, persist, verify
// stored open postings against their pages, enrich via the model, and
// send the digest. Every run is recorded in the audit table.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/classify"
	"github.com/jonathan/scholarwatch/internal/collect"
	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/enrich"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/normalize"
	"github.com/jonathan/scholarwatch/internal/notify"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
	"github.com/jonathan/scholarwatch/internal/verify"
)

// Stage runners, satisfied by the concrete collect, verify, enrich and
// notify implementations.
type (
	CollectRunner interface {
		Run(ctx context.Context) (*collect.Result, error)
	}
	VerifyRunner interface {
		Run(ctx context.Context) (*verify.Stats, error)
	}
	EnrichRunner interface {
		Run(ctx context.Context) (*enrich.Stats, error)
	}
	NotifyRunner interface {
		Run(ctx context.Context, dryRun bool) (*notify.Result, error)
	}
)

// Pipeline wires the run stages together.
type Pipeline struct {
	store      *store.Store
	collector  CollectRunner
	verifier   VerifyRunner
	enricher   EnrichRunner
	notifier   NotifyRunner
	canon      *normalize.Canonicalizer
	dedup      *normalize.Deduplicator
	classifier *classify.Classifier
	cfg        *config.Config
	log        zerolog.Logger
	now        func() time.Time
}

// New builds a pipeline from its stages.
func New(
	st *store.Store,
	collector CollectRunner,
	verifier VerifyRunner,
	enricher EnrichRunner,
	notifier NotifyRunner,
	cfg *config.Config,
) *Pipeline {
	log := logging.Component("pipeline")
	canon := normalize.NewCanonicalizer(cfg.TrackingParams)
	return &Pipeline{
		store:      st,
		collector:  collector,
		verifier:   verifier,
		enricher:   enricher,
		notifier:   notifier,
		canon:      canon,
		dedup:      normalize.NewDeduplicator(canon, cfg.FuzzyThreshold, logging.Component("dedup")),
		classifier: classify.New(cfg.RankBuckets, logging.Component("classify")),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Summary is the outcome of one pipeline run.
type Summary struct {
	RunKey string
	Status types.RunStatus
	Stats  types.RunStats
	Errors []string
}

// Run executes the full pipeline. Per-item failures are collected into
// the run's error list; only storage-level failures abort the run.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (*Summary, error) {
	runKey := uuid.NewString()
	summary := &Summary{RunKey: runKey, Status: types.RunFailed}
	log := p.log.With().Str("run_key", runKey).Logger()

	runID, err := p.store.StartRun(ctx, runKey)
	if err != nil {
		return summary, fmt.Errorf("failed to start run: %w", err)
	}
	log.Info().Bool("dry_run", dryRun).Msg("pipeline run started")

	metadata := map[string]string{"dry_run": strconv.FormatBool(dryRun)}
	finish := func(status types.RunStatus) {
		summary.Status = status
		if err := p.store.FinishRun(ctx, runID, status, summary.Stats, summary.Errors, metadata); err != nil {
			log.Error().Err(err).Msg("failed to record run outcome")
		}
	}

	// Collect.
	collected, err := p.collector.Run(ctx)
	if collected != nil {
		summary.Errors = append(summary.Errors, collected.Errors...)
	}
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		finish(types.RunFailed)
		return summary, err
	}
	summary.Stats.PostingsFound = len(collected.Postings)

	// Normalize, dedup, persist.
	if err := p.ingest(ctx, collected.Postings, summary); err != nil {
		finish(types.RunFailed)
		return summary, err
	}

	// Verify stored open postings.
	vstats, err := p.verifier.Run(ctx)
	if vstats != nil {
		summary.Errors = append(summary.Errors, vstats.Errors...)
	}
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		finish(types.RunFailed)
		return summary, err
	}

	// Enrich.
	estats, err := p.enricher.Run(ctx)
	if estats != nil {
		summary.Errors = append(summary.Errors, estats.Errors...)
		summary.Stats.EnrichmentsMade = estats.ProviderCalls
	}
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		finish(types.RunFailed)
		return summary, err
	}

	// Digest.
	nres, err := p.notifier.Run(ctx, dryRun)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		finish(types.RunFailed)
		return summary, err
	}
	summary.Stats.EmailsSent = nres.Sent
	if dryRun {
		metadata["digest_eligible"] = strconv.Itoa(nres.Eligible)
	}

	finish(types.RunCompleted)
	log.Info().
		Int("found", summary.Stats.PostingsFound).
		Int("new", summary.Stats.PostingsNew).
		Int("updated", summary.Stats.PostingsUpdated).
		Int("enrichments", summary.Stats.EnrichmentsMade).
		Int("emailed", summary.Stats.EmailsSent).
		Int("errors", len(summary.Errors)).
		Msg("pipeline run completed")
	return summary, nil
}

// ingest turns raw postings into stored records. Item-level failures
// are appended to the summary; a store failure aborts.
func (p *Pipeline) ingest(ctx context.Context, raws []types.RawPosting, summary *Summary) error {
	existing, err := p.store.AllPostingIDs(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return fmt.Errorf("failed to load existing posting IDs: %w", err)
	}

	unique := p.dedup.Deduplicate(raws, existing)
	for i := range unique {
		raw := &unique[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		isNew, err := p.ingestOne(ctx, raw)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("ingest %s: %v", raw.URL, err))
			p.log.Warn().Str("url", raw.URL).Err(err).Msg("failed to ingest posting")
			continue
		}
		if isNew {
			summary.Stats.PostingsNew++
		} else {
			summary.Stats.PostingsUpdated++
		}
	}
	return nil
}

func (p *Pipeline) ingestOne(ctx context.Context, raw *types.RawPosting) (bool, error) {
	canonical := p.canon.Canonical(raw.URL)
	id := normalize.PostingID(canonical)
	bucket, source := p.classifier.Classify(raw.Title)

	// Adapters deliver closing dates as free text; store only what
	// parses to a real calendar date.
	closing := ""
	if raw.ClosingDate != "" {
		closing = verify.ParseDate(raw.ClosingDate)
	}

	isNew, err := p.store.UpsertPosting(ctx, types.Posting{
		PostingID:    id,
		URLCanonical: canonical,
		URLOriginal:  raw.URL,
		SourceID:     raw.SourceID,
		JobTitle:     raw.Title,
		Institution:  raw.Institution,
		Language:     raw.Language,
		ClosingDate:  closing,
		RankBucket:   bucket,
		RankSource:   source,
		OpenStatus:   types.StatusOpen,
	})
	if err != nil {
		return false, err
	}

	if raw.ContentText != "" {
		hash := verify.ContentHash(raw.ContentText)
		latest, err := p.store.LatestSnapshotHash(ctx, id)
		if err != nil {
			return isNew, err
		}
		if latest != hash {
			if _, err := p.store.InsertSnapshot(ctx, types.Snapshot{
				PostingID:   id,
				ContentText: raw.ContentText,
				ContentHTML: raw.ContentHTML,
				ContentHash: hash,
			}); err != nil {
				return isNew, err
			}
		}
	}
	return isNew, nil
}
