package enrich

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/llm"
	"github.com/jonathan/scholarwatch/internal/prompts"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
)

// fakeClient returns canned JSON per prompt substring and counts calls.
type fakeClient struct {
	responses map[string]string // prompt substring -> output
	fallback  string
	calls     int
	fail      bool
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	f.calls++
	if f.fail {
		return "", fmt.Errorf("provider unavailable")
	}
	for sub, out := range f.responses {
		if sub != "" && strings.Contains(prompt, sub) {
			return out, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeClient) Model(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error               { return nil }

func newEnricher(t *testing.T, client llm.Client) (*Enricher, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "enrich.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, client, config.Default()), st
}

func seed(t *testing.T, st *store.Store, p types.Posting) {
	t.Helper()
	if p.URLCanonical == "" {
		p.URLCanonical = "https://example.com/jobs/" + p.PostingID
		p.URLOriginal = p.URLCanonical
	}
	if p.SourceID == "" {
		p.SourceID = "jobs_ac_uk"
	}
	if p.OpenStatus == "" {
		p.OpenStatus = types.StatusOpen
	}
	if p.RankBucket == "" {
		p.RankBucket = types.RankAssociateProfessor
		p.RankSource = types.RankSourceRules
	}
	_, err := st.UpsertPosting(context.Background(), p)
	require.NoError(t, err)
}

func englishPosting(id string) types.Posting {
	return types.Posting{
		PostingID:   id,
		JobTitle:    "Senior Lecturer in Psychology",
		Institution: "King's College London",
		Language:    "en",
		RankBucket:  types.RankAssociateProfessor,
		RankSource:  types.RankSourceRules,
	}
}

const relevanceOut = `{"relevance_score": 0.85, "seniority_match": true, "rationale": "strong fit"}`
const extractionOut = `{"department": "School of Psychology", "city": "London", "country": "UK", "topic_tags": ["clinical"]}`

func TestRun_RelevanceAndExtraction(t *testing.T) {
	client := &fakeClient{
		responses: map[string]string{
			"Score how well":     relevanceOut,
			"Extract structured": extractionOut,
		},
	}
	e, st := newEnricher(t, client)
	seed(t, st, englishPosting("aaa0000000000001"))

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 2, stats.ProviderCalls)
	assert.Equal(t, 0, stats.CacheHits)

	p, err := st.GetPosting(context.Background(), "aaa0000000000001")
	require.NoError(t, err)
	assert.True(t, p.HasRelevance)
	assert.InDelta(t, 0.85, p.RelevanceScore, 1e-9)
	assert.True(t, p.SeniorityMatch)
	assert.Equal(t, "strong fit", p.RelevanceRationale)
	assert.Equal(t, "School of Psychology", p.Department)
	assert.Equal(t, []string{"clinical"}, p.TopicTags)
}

func TestRun_SecondPassHitsCache(t *testing.T) {
	client := &fakeClient{
		responses: map[string]string{
			"Score how well":     relevanceOut,
			"Extract structured": extractionOut,
		},
	}
	e, st := newEnricher(t, client)
	seed(t, st, englishPosting("aaa0000000000002"))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	firstCalls := client.calls

	// The needing-enrichment query excludes cached postings entirely,
	// so the second pass makes no provider calls.
	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ProviderCalls)
	assert.Equal(t, firstCalls, client.calls)
}

func TestGetOrCompute_IdenticalInputComputedOnce(t *testing.T) {
	client := &fakeClient{fallback: relevanceOut}
	e, st := newEnricher(t, client)
	seed(t, st, englishPosting("aaa0000000000003"))

	p, err := st.GetPosting(context.Background(), "aaa0000000000003")
	require.NoError(t, err)

	prompt := mustPrompt(t, "relevance")
	out1, cached1, err := e.getOrCompute(context.Background(), types.TaskRelevance, llm.TierLite, prompt, p)
	require.NoError(t, err)
	out2, cached2, err := e.getOrCompute(context.Background(), types.TaskRelevance, llm.TierLite, prompt, p)
	require.NoError(t, err)

	assert.False(t, cached1)
	assert.True(t, cached2)
	assert.Equal(t, out1, out2)
	assert.Equal(t, 1, client.calls)
}

func TestRun_CallCapStopsProviderCalls(t *testing.T) {
	client := &fakeClient{fallback: relevanceOut}
	e, st := newEnricher(t, client)
	e.cfg.EnrichCallCap = 2
	for i := 0; i < 5; i++ {
		seed(t, st, englishPosting(fmt.Sprintf("bbb000000000000%d", i)))
	}

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ProviderCalls)
	assert.Equal(t, 2, client.calls)
}

func TestRun_InvalidOutputNotCached(t *testing.T) {
	client := &fakeClient{fallback: `{"relevance_score": "very high"}`}
	e, st := newEnricher(t, client)
	seed(t, st, englishPosting("ccc0000000000001"))

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Errors)

	// Nothing was persisted for the failed task.
	pending, err := st.PostingsNeedingEnrichment(context.Background(), types.TaskRelevance, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRun_ProviderFailureIsIsolated(t *testing.T) {
	client := &fakeClient{fail: true}
	e, st := newEnricher(t, client)
	seed(t, st, englishPosting("ddd0000000000001"))

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Errors)
	assert.Equal(t, 0, stats.Updated)
}

func TestRun_SynopsisOnlyForNonEnglish(t *testing.T) {
	client := &fakeClient{
		responses: map[string]string{
			"Score how well":         relevanceOut,
			"Extract structured":     `{}`,
			"short English synopsis": `{"synopsis": "A role in Copenhagen."}`,
		},
	}
	e, st := newEnricher(t, client)

	danish := englishPosting("eee0000000000001")
	danish.Language = "da"
	danish.JobTitle = "Lektor i psykologi"
	seed(t, st, danish)
	seed(t, st, englishPosting("eee0000000000002"))

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	p, err := st.GetPosting(context.Background(), "eee0000000000001")
	require.NoError(t, err)
	assert.Equal(t, "A role in Copenhagen.", p.Synopsis)

	p, err = st.GetPosting(context.Background(), "eee0000000000002")
	require.NoError(t, err)
	assert.Empty(t, p.Synopsis)
}

// precache stores a provider result for the posting's current input so a
// task is already satisfied when Run starts.
func precache(t *testing.T, st *store.Store, p types.Posting, task types.TaskType, output string) {
	t.Helper()
	prompt := mustPrompt(t, string(task))
	input := p.JobTitle + "\n" + p.Institution
	_, err := st.InsertEnrichment(context.Background(), types.Enrichment{
		PostingID:     p.PostingID,
		TaskType:      task,
		PromptVersion: prompt.Version,
		ModelID:       "fake-model",
		InputHash:     InputHash(prompt.Version, input),
		OutputJSON:    output,
	})
	require.NoError(t, err)
}

func TestRun_IneligiblePostingsDoNotConsumeCallCap(t *testing.T) {
	client := &fakeClient{
		responses: map[string]string{
			"short English synopsis": `{"synopsis": "Professorship in Munich."}`,
		},
	}
	e, st := newEnricher(t, client)
	e.cfg.EnrichCallCap = 1

	german := englishPosting("ggg0000000000001")
	german.Language = "de"
	german.JobTitle = "Professur für Psychologie"
	english1 := englishPosting("ggg0000000000002")
	english2 := englishPosting("ggg0000000000003")
	seed(t, st, german)
	seed(t, st, english1)
	seed(t, st, english2)

	// Relevance and extraction are already cached everywhere; the only
	// remaining work is the German synopsis. The English postings carry
	// no synopsis work, so they must not fill the selection window and
	// leave the single permitted call unspent.
	for _, p := range []types.Posting{german, english1, english2} {
		precache(t, st, p, types.TaskRelevance, relevanceOut)
		precache(t, st, p, types.TaskExtraction, `{}`)
	}

	stats, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.ProviderCalls)
	assert.Equal(t, 1, client.calls)

	p, err := st.GetPosting(context.Background(), "ggg0000000000001")
	require.NoError(t, err)
	assert.Equal(t, "Professorship in Munich.", p.Synopsis)
}

func TestRun_RankFallbackOnlyForOther(t *testing.T) {
	client := &fakeClient{
		responses: map[string]string{
			"Score how well":        relevanceOut,
			"Extract structured":    `{}`,
			"Classify the academic": `{"rank_bucket": "associate_professor"}`,
		},
	}
	e, st := newEnricher(t, client)

	unplaced := englishPosting("fff0000000000001")
	unplaced.JobTitle = "Universitetslektor"
	unplaced.RankBucket = types.RankOther
	unplaced.RankSource = types.RankSourceRules
	seed(t, st, unplaced)
	seed(t, st, englishPosting("fff0000000000002"))

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	p, err := st.GetPosting(context.Background(), "fff0000000000001")
	require.NoError(t, err)
	assert.Equal(t, types.RankAssociateProfessor, p.RankBucket)
	assert.Equal(t, types.RankSourceFallback, p.RankSource)

	// The rule-classified posting was not reclassified.
	p, err = st.GetPosting(context.Background(), "fff0000000000002")
	require.NoError(t, err)
	assert.Equal(t, types.RankSourceRules, p.RankSource)
}

func mustPrompt(t *testing.T, key string) prompts.Prompt {
	t.Helper()
	p, err := prompts.Get(key)
	require.NoError(t, err)
	return p
}

func TestInputHash_VersionChangesKey(t *testing.T) {
	a := InputHash("v1", "same text")
	b := InputHash("v2", "same text")
	c := InputHash("v1", "same text")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
	assert.Len(t, a, 64)
}
