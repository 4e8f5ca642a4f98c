package normalize

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/scholarwatch/internal/types"
)

func testDeduplicator(threshold int) *Deduplicator {
	return NewDeduplicator(testCanonicalizer(), threshold, zerolog.Nop())
}

func TestDeduplicate_ExactTier(t *testing.T) {
	d := testDeduplicator(85)

	batch := []types.RawPosting{
		{URL: "https://example.com/jobs/1", Title: "Senior Lecturer in Psychology", SourceID: "a"},
		{URL: "https://example.com/jobs/1?utm_source=x", Title: "Totally different title", SourceID: "b"},
		{URL: "https://example.com/jobs/2", Title: "Professor of Physics", SourceID: "a"},
	}

	out := d.Deduplicate(batch, nil)

	assert.Len(t, out, 2)
	assert.Equal(t, "https://example.com/jobs/1", out[0].URL)
	assert.Equal(t, "https://example.com/jobs/2", out[1].URL)
}

func TestDeduplicate_AgainstPersistedIDs(t *testing.T) {
	d := testDeduplicator(85)

	known := PostingID(testCanonicalizer().Canonical("https://example.com/jobs/1"))
	existing := map[string]struct{}{known: {}}

	out := d.Deduplicate([]types.RawPosting{
		{URL: "https://example.com/jobs/1", Title: "Old posting"},
		{URL: "https://example.com/jobs/3", Title: "New posting"},
	}, existing)

	assert.Len(t, out, 1)
	assert.Equal(t, "https://example.com/jobs/3", out[0].URL)
}

func TestDeduplicate_FuzzyTier(t *testing.T) {
	d := testDeduplicator(85)

	batch := []types.RawPosting{
		{URL: "https://a.example.com/1", Title: "Senior Lecturer in Psychology", Institution: "King's College London"},
		{URL: "https://b.example.com/2", Title: "Senior Lecturer in Psychology", Institution: "Kings College London"},
		{URL: "https://c.example.com/3", Title: "Postdoc in Marine Biology", Institution: "University of Bergen"},
	}

	out := d.Deduplicate(batch, nil)

	assert.Len(t, out, 2)
	assert.Equal(t, "https://a.example.com/1", out[0].URL)
	assert.Equal(t, "https://c.example.com/3", out[1].URL)
}

func TestDeduplicate_BelowThresholdKeepsBoth(t *testing.T) {
	d := testDeduplicator(85)

	batch := []types.RawPosting{
		{URL: "https://a.example.com/1", Title: "Senior Lecturer in Psychology", Institution: "UCL"},
		{URL: "https://b.example.com/2", Title: "Reader in Organic Chemistry", Institution: "Oxford"},
	}

	out := d.Deduplicate(batch, nil)
	assert.Len(t, out, 2)
}

func TestDeduplicate_EmptySignatureSkipsFuzzyTier(t *testing.T) {
	d := testDeduplicator(85)

	// No title, no institution: the fuzzy tier must not reject either.
	batch := []types.RawPosting{
		{URL: "https://a.example.com/1"},
		{URL: "https://b.example.com/2"},
	}

	out := d.Deduplicate(batch, nil)
	assert.Len(t, out, 2)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, Similarity("senior lecturer", "lecturer senior"))
	assert.Equal(t, 100, Similarity("", ""))
	assert.Greater(t, Similarity("senior lecturer in psychology", "senior lecturer in psychology "), 95)
	assert.Less(t, Similarity("senior lecturer in psychology", "postdoc in marine biology"), 50)
}
