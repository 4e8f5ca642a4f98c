// Package normalize provides URL canonicalization, posting identity
// generation, and two-tier batch deduplication.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Canonicalizer normalizes URLs for identity purposes. The canonical form is
// never shown to users; the original URL is kept for display.
type Canonicalizer struct {
	strip map[string]bool
}

// NewCanonicalizer builds a Canonicalizer that strips the given tracking
// query parameters (matched case-insensitively).
func NewCanonicalizer(trackingParams []string) *Canonicalizer {
	strip := make(map[string]bool, len(trackingParams))
	for _, p := range trackingParams {
		strip[strings.ToLower(p)] = true
	}
	return &Canonicalizer{strip: strip}
}

// Canonical normalizes a raw URL: lowercases scheme and host, drops default
// ports, strips tracking query parameters while preserving the order of the
// rest, and removes a single trailing slash unless the path is the root.
// Malformed input falls back to the trimmed raw string. The function is
// idempotent: Canonical(Canonical(u)) == Canonical(u).
func (c *Canonicalizer) Canonical(raw string) string {
	trimmed := strings.TrimSpace(raw)

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = stripDefaultPort(scheme, host)

	path := u.EscapedPath()
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)

	if q := c.filterQuery(u.RawQuery); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

// filterQuery removes tracking parameters from a raw query string while
// keeping the remaining pairs in their original order and encoding.
// url.Values is deliberately avoided here: it loses parameter order.
func (c *Canonicalizer) filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		if c.strip[strings.ToLower(key)] {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func stripDefaultPort(scheme, host string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// PostingID derives the stable posting identity from a canonical URL:
// hex(sha256(url)) truncated to 16 characters.
func PostingID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:16]
}
