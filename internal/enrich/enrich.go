// Package enrich runs the LLM enrichment tasks over stored postings:
// relevance scoring, structured field extraction, English synopses for
// foreign-language adverts, and a rank classification fallback. Every
// provider result is content-addressed in the store, so re-running the
// pipeline over unchanged postings costs no provider calls.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/llm"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/prompts"
	"github.com/jonathan/scholarwatch/internal/schemas"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
)

// ErrCallCapReached is returned once the per-run provider budget is
// spent; remaining postings wait for the next run.
var ErrCallCapReached = errors.New("enrichment call cap reached")

// Enricher runs enrichment tasks against the store.
type Enricher struct {
	store  *store.Store
	client llm.Client
	cfg    *config.Config
	log    zerolog.Logger

	mu    sync.Mutex
	calls int
}

// New builds an enricher.
func New(st *store.Store, client llm.Client, cfg *config.Config) *Enricher {
	return &Enricher{
		store:  st,
		client: client,
		cfg:    cfg,
		log:    logging.Component("enrich"),
	}
}

// Stats summarizes one enrichment pass.
type Stats struct {
	ProviderCalls int
	CacheHits     int
	Updated       int
	// Errors holds one message per posting task that failed. A failing
	// posting never aborts the pass.
	Errors []string
}

// Run executes the task sequence: relevance for everything new, field
// extraction, synopses for non-English postings, then the rank fallback
// for titles the rule table could not place.
func (e *Enricher) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	// Task eligibility (non-English for the synopsis, unplaced ranks for
	// the fallback) is enforced by the store query, so every posting a
	// task loads is one it should run on.
	tasks := []struct {
		task  types.TaskType
		tier  llm.ModelTier
		apply func(*types.Posting, string) *types.PostingUpdate
	}{
		{types.TaskRelevance, llm.TierLite, e.applyRelevance},
		{types.TaskExtraction, llm.TierStandard, e.applyExtraction},
		{types.TaskSynopsis, llm.TierStandard, e.applySynopsis},
		{types.TaskRankFallback, llm.TierLite, e.applyRankFallback},
	}

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := e.runTask(ctx, t.task, t.tier, t.apply, stats); err != nil {
			if errors.Is(err, ErrCallCapReached) {
				e.log.Warn().Str("task", string(t.task)).Msg("call cap reached, deferring remaining work")
				break
			}
			return stats, err
		}
	}

	e.log.Info().
		Int("provider_calls", stats.ProviderCalls).
		Int("cache_hits", stats.CacheHits).
		Int("updated", stats.Updated).
		Int("errors", len(stats.Errors)).
		Msg("enrichment pass done")
	return stats, nil
}

func (e *Enricher) runTask(
	ctx context.Context,
	task types.TaskType,
	tier llm.ModelTier,
	apply func(*types.Posting, string) *types.PostingUpdate,
	stats *Stats,
) error {
	postings, err := e.store.PostingsNeedingEnrichment(ctx, task, e.cfg.EnrichCallCap)
	if err != nil {
		return fmt.Errorf("failed to load postings for %s: %w", task, err)
	}

	prompt, err := prompts.Get(string(task))
	if err != nil {
		return err
	}

	for i := range postings {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &postings[i]

		output, cached, err := e.getOrCompute(ctx, task, tier, prompt, p)
		if errors.Is(err, ErrCallCapReached) {
			return err
		}
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s for %s: %v", task, p.PostingID, err))
			e.log.Warn().Str("task", string(task)).Str("posting_id", p.PostingID).Err(err).Msg("enrichment failed")
			continue
		}
		if cached {
			stats.CacheHits++
		} else {
			stats.ProviderCalls++
		}

		if update := apply(p, output); !update.IsEmpty() {
			if err := e.store.ApplyUpdate(ctx, p.PostingID, update); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s for %s: %v", task, p.PostingID, err))
				continue
			}
			stats.Updated++
		}
	}
	return nil
}

// getOrCompute returns the cached output for the posting's current
// input, or calls the provider and caches the validated result. The
// get-then-insert is serialized so identical inputs never trigger two
// provider calls.
func (e *Enricher) getOrCompute(ctx context.Context, task types.TaskType, tier llm.ModelTier, prompt prompts.Prompt, p *types.Posting) (output string, cached bool, err error) {
	input, err := e.inputText(ctx, p)
	if err != nil {
		return "", false, err
	}
	hash := InputHash(prompt.Version, input)

	e.mu.Lock()
	defer e.mu.Unlock()

	if hit, err := e.store.CachedEnrichment(ctx, task, hash); err != nil {
		return "", false, err
	} else if hit != nil {
		return hit.OutputJSON, true, nil
	}

	if e.calls >= e.cfg.EnrichCallCap {
		return "", false, ErrCallCapReached
	}
	e.calls++

	raw, err := e.client.GenerateJSON(ctx, e.renderPrompt(prompt.Template, p, input), tier)
	if err != nil {
		return "", false, err
	}
	if err := schemas.ValidateTaskOutput(task, raw); err != nil {
		return "", false, err
	}

	if _, err := e.store.InsertEnrichment(ctx, types.Enrichment{
		PostingID:     p.PostingID,
		TaskType:      task,
		PromptVersion: prompt.Version,
		ModelID:       e.client.Model(tier),
		InputHash:     hash,
		OutputJSON:    raw,
	}); err != nil {
		return "", false, err
	}
	return raw, false, nil
}

// inputText builds the stable enrichment input for a posting: title and
// institution, plus the latest snapshot text when one exists.
func (e *Enricher) inputText(ctx context.Context, p *types.Posting) (string, error) {
	text, err := e.store.LatestSnapshotText(ctx, p.PostingID)
	if err != nil {
		return "", err
	}
	parts := []string{p.JobTitle, p.Institution}
	if text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

func (e *Enricher) renderPrompt(template string, p *types.Posting, input string) string {
	// The posting text placeholder gets the full input minus the
	// title/institution header lines, which have their own slots.
	body := input
	if idx := strings.Index(input, "\n"); idx >= 0 {
		if idx2 := strings.Index(input[idx+1:], "\n"); idx2 >= 0 {
			body = input[idx+1+idx2+1:]
		} else {
			body = ""
		}
	}
	return prompts.Format(template, map[string]string{
		"Title":       p.JobTitle,
		"Institution": p.Institution,
		"Text":        body,
		"Keywords":    strings.Join(e.cfg.Keywords.Thematic, ", "),
		"Buckets":     bucketList(),
	})
}

func bucketList() string {
	return strings.Join([]string{
		string(types.RankProfessor),
		string(types.RankAssociateProfessor),
		string(types.RankAssistantProfessor),
		string(types.RankResearchFellow),
		string(types.RankPostdoc),
		string(types.RankOther),
	}, ", ")
}

// InputHash is the cache key component derived from the prompt version
// and the posting's input text.
func InputHash(promptVersion, input string) string {
	sum := sha256.Sum256([]byte(promptVersion + ":" + input))
	return hex.EncodeToString(sum[:])
}

func (e *Enricher) applyRelevance(p *types.Posting, output string) *types.PostingUpdate {
	u := &types.PostingUpdate{}
	if score := gjson.Get(output, "relevance_score"); score.Exists() {
		u.RelevanceScore = types.Float(score.Float())
	}
	if match := gjson.Get(output, "seniority_match"); match.Exists() {
		u.SeniorityMatch = types.Bool(match.Bool())
	}
	if rationale := gjson.Get(output, "rationale"); rationale.String() != "" {
		u.RelevanceRationale = types.Str(rationale.String())
	}
	return u
}

// applyExtraction only fills fields the record does not have yet, so a
// model result never displaces data seen directly from the source.
func (e *Enricher) applyExtraction(p *types.Posting, output string) *types.PostingUpdate {
	u := &types.PostingUpdate{}
	setStr := func(key, current string, dst **string) {
		if current != "" {
			return
		}
		if v := gjson.Get(output, key); v.Type == gjson.String && v.String() != "" {
			s := v.String()
			*dst = &s
		}
	}
	setFloat := func(key string, current float64, dst **float64) {
		if current != 0 {
			return
		}
		if v := gjson.Get(output, key); v.Type == gjson.Number {
			f := v.Float()
			*dst = &f
		}
	}
	setStr("department", p.Department, &u.Department)
	setStr("city", p.City, &u.City)
	setStr("country", p.Country, &u.Country)
	setStr("language", p.Language, &u.Language)
	setStr("contract_type", p.ContractType, &u.ContractType)
	setStr("currency", p.Currency, &u.Currency)
	setStr("closing_date", p.ClosingDate, &u.ClosingDate)
	setStr("interview_date", p.InterviewDate, &u.InterviewDate)
	setFloat("fte", p.FTE, &u.FTE)
	setFloat("salary_min", p.SalaryMin, &u.SalaryMin)
	setFloat("salary_max", p.SalaryMax, &u.SalaryMax)
	if len(p.TopicTags) == 0 {
		if tags := gjson.Get(output, "topic_tags"); tags.IsArray() {
			for _, tag := range tags.Array() {
				if tag.String() != "" {
					u.TopicTags = append(u.TopicTags, tag.String())
				}
			}
		}
	}
	return u
}

func (e *Enricher) applySynopsis(p *types.Posting, output string) *types.PostingUpdate {
	u := &types.PostingUpdate{}
	if synopsis := gjson.Get(output, "synopsis"); synopsis.String() != "" {
		u.Synopsis = types.Str(synopsis.String())
	}
	return u
}

func (e *Enricher) applyRankFallback(p *types.Posting, output string) *types.PostingUpdate {
	u := &types.PostingUpdate{}
	bucket := types.RankBucket(gjson.Get(output, "rank_bucket").String())
	switch bucket {
	case types.RankProfessor, types.RankAssociateProfessor, types.RankAssistantProfessor,
		types.RankResearchFellow, types.RankPostdoc:
		src := types.RankSourceFallback
		u.RankBucket = &bucket
		u.RankSource = &src
	case types.RankOther:
		// The model agrees with the rule table; record that the
		// fallback ran so it is not retried every pass.
		src := types.RankSourceFallback
		u.RankSource = &src
	}
	return u
}
