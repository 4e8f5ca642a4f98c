package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
)

func newNotifier(t *testing.T, apiKey string) (*Notifier, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "notify.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Notify.Recipient = "researcher@example.com"
	return New(st, cfg, apiKey), st
}

func seedScored(t *testing.T, st *store.Store, id string, score float64) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertPosting(ctx, types.Posting{
		PostingID:    id,
		URLCanonical: "https://example.com/jobs/" + id,
		URLOriginal:  "https://example.com/jobs/" + id,
		SourceID:     "jobs_ac_uk",
		JobTitle:     "Senior Lecturer in Psychology",
		Institution:  "King's College London",
		RankBucket:   types.RankAssociateProfessor,
		RankSource:   types.RankSourceRules,
		OpenStatus:   types.StatusOpen,
	})
	require.NoError(t, err)
	require.NoError(t, st.ApplyUpdate(ctx, id, &types.PostingUpdate{RelevanceScore: types.Float(score)}))
}

func TestRun_SendsAndMarks(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "msg_123"}`))
	}))
	defer srv.Close()

	n, st := newNotifier(t, "re_testkey")
	n.endpoint = srv.URL
	seedScored(t, st, "aaa0000000000001", 0.9)
	seedScored(t, st, "aaa0000000000002", 0.5)

	res, err := n.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Eligible)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, "msg_123", res.DeliveryID)
	assert.Equal(t, "Bearer re_testkey", gotAuth)
	assert.Contains(t, gotBody["subject"], "2 new postings")
	assert.Contains(t, gotBody["html"], "Senior Lecturer in Psychology")

	// Postings are marked and will not be resent.
	res, err = n.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Eligible)
}

func TestRun_DryRunSendsNothing(t *testing.T) {
	n, st := newNotifier(t, "re_testkey")
	n.endpoint = "http://invalid.invalid" // any real call would fail
	seedScored(t, st, "bbb0000000000001", 0.9)

	res, err := n.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Eligible)
	assert.Equal(t, 0, res.Sent)
	assert.Empty(t, res.DeliveryID)

	// Nothing was marked; a later real run still sees the posting.
	res, err = n.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
}

func TestRun_BelowThresholdExcluded(t *testing.T) {
	n, st := newNotifier(t, "re_testkey")
	seedScored(t, st, "ccc0000000000001", 0.1)

	res, err := n.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Eligible)
}

func TestRun_MissingKeyOnlyFailsWithWork(t *testing.T) {
	n, st := newNotifier(t, "")

	// Empty digest: no error despite the missing key.
	res, err := n.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Eligible)

	seedScored(t, st, "ddd0000000000001", 0.9)
	_, err = n.Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESEND_API_KEY")
}

func TestRun_SendFailureLeavesUnmarked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	n, st := newNotifier(t, "re_bad")
	n.endpoint = srv.URL
	seedScored(t, st, "eee0000000000001", 0.9)

	_, err := n.Run(context.Background(), false)
	require.Error(t, err)

	// Posting stays eligible for the next attempt.
	res, err := n.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
}

func TestRenderDigest(t *testing.T) {
	html, err := renderDigest([]types.Posting{{
		PostingID:          "x",
		URLCanonical:       "https://example.com/jobs/x",
		JobTitle:           "Reader in Cognitive Science",
		Institution:        "UCL",
		Department:         "Division of Psychology",
		City:               "London",
		ClosingDate:        "2026-10-01",
		Synopsis:           "A senior post in cognitive science.",
		RelevanceScore:     0.87,
		TopicTags:          []string{"cognition", "neuroimaging"},
		RelevanceRationale: "Strong topical overlap.",
	}})
	require.NoError(t, err)

	assert.Contains(t, html, "Reader in Cognitive Science")
	assert.Contains(t, html, "87% match")
	assert.Contains(t, html, "2026-10-01")
	assert.Contains(t, html, "cognition, neuroimaging")
	// Template escapes content.
	htmlInjected, err := renderDigest([]types.Posting{{
		JobTitle:     "<script>alert(1)</script>",
		URLCanonical: "https://example.com/x",
	}})
	require.NoError(t, err)
	assert.NotContains(t, htmlInjected, "<script>")
}
