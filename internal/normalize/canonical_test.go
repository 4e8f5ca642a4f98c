package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCanonicalizer() *Canonicalizer {
	return NewCanonicalizer([]string{
		"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
		"ref", "fbclid", "gclid",
	})
}

func TestCanonical(t *testing.T) {
	c := testCanonicalizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Jobs/123",
			want: "https://example.com/Jobs/123",
		},
		{
			name: "drops default https port",
			in:   "https://example.com:443/jobs",
			want: "https://example.com/jobs",
		},
		{
			name: "drops default http port",
			in:   "http://example.com:80/jobs",
			want: "http://example.com/jobs",
		},
		{
			name: "keeps explicit non-default port",
			in:   "https://example.com:8443/jobs",
			want: "https://example.com:8443/jobs",
		},
		{
			name: "strips tracking params and keeps the rest in order",
			in:   "https://example.com/jobs?b=2&utm_source=x&a=1&fbclid=abc",
			want: "https://example.com/jobs?b=2&a=1",
		},
		{
			name: "removes trailing slash",
			in:   "https://example.com/jobs/",
			want: "https://example.com/jobs",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "query only of tracking params",
			in:   "https://example.com/jobs?utm_source=x&utm_medium=y",
			want: "https://example.com/jobs",
		},
		{
			name: "malformed input falls back to trimmed raw",
			in:   "  not a url  ",
			want: "not a url",
		},
		{
			name: "missing scheme falls back to trimmed raw",
			in:   "example.com/jobs",
			want: "example.com/jobs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Canonical(tt.in))
		})
	}
}

func TestCanonical_Idempotent(t *testing.T) {
	c := testCanonicalizer()

	urls := []string{
		"HTTPS://Example.COM:443/Jobs/?utm_source=x&keep=1",
		"https://example.com/jobs?a=1&b=2",
		"http://example.com/",
		"garbage input",
	}
	for _, u := range urls {
		once := c.Canonical(u)
		assert.Equal(t, once, c.Canonical(once), "canonicalization must be idempotent for %q", u)
	}
}

func TestPostingID(t *testing.T) {
	id := PostingID("https://example.com/jobs/123")

	assert.Len(t, id, 16)
	assert.Regexp(t, `^[0-9a-f]{16}$`, id)

	// Deterministic across calls.
	assert.Equal(t, id, PostingID("https://example.com/jobs/123"))

	// Distinct canonical URLs get distinct identities.
	assert.NotEqual(t, id, PostingID("https://example.com/jobs/124"))
}

func TestPostingID_TrackingParamsCollapse(t *testing.T) {
	c := testCanonicalizer()

	plain := PostingID(c.Canonical("https://example.com/jobs/123"))
	tracked := PostingID(c.Canonical("https://example.com/jobs/123?utm_source=newsletter"))
	assert.Equal(t, plain, tracked)
}
