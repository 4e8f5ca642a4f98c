package normalize

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/types"
)

// Deduplicator removes exact and near-duplicate candidates from a batch in a
// single ordered pass. Exact duplicates are rejected against both the
// persisted identity set and earlier batch entries; fuzzy duplicates are
// rejected batch-locally only.
type Deduplicator struct {
	canon     *Canonicalizer
	threshold int
	log       zerolog.Logger
}

// NewDeduplicator builds a Deduplicator. threshold is the minimum similarity
// score (0-100) at which two signatures count as near-duplicates.
func NewDeduplicator(canon *Canonicalizer, threshold int, log zerolog.Logger) *Deduplicator {
	return &Deduplicator{canon: canon, threshold: threshold, log: log}
}

// Deduplicate returns the accepted subsequence of the batch, original order
// preserved. existingIDs is the set of posting identities already persisted.
func (d *Deduplicator) Deduplicate(batch []types.RawPosting, existingIDs map[string]struct{}) []types.RawPosting {
	seen := make(map[string]struct{}, len(existingIDs)+len(batch))
	for id := range existingIDs {
		seen[id] = struct{}{}
	}

	var (
		unique     []types.RawPosting
		signatures []string
	)
	for _, p := range batch {
		id := PostingID(d.canon.Canonical(p.URL))
		if _, dup := seen[id]; dup {
			d.log.Debug().Str("url", p.URL).Msg("duplicate URL")
			continue
		}
		seen[id] = struct{}{}

		sig := signature(p)
		if sig != "" && d.isFuzzyDuplicate(sig, signatures) {
			d.log.Debug().Str("title", p.Title).Msg("fuzzy duplicate")
			continue
		}
		if sig != "" {
			signatures = append(signatures, sig)
		}

		unique = append(unique, p)
	}

	d.log.Info().
		Int("input", len(batch)).
		Int("unique", len(unique)).
		Int("removed", len(batch)-len(unique)).
		Msg("deduplication complete")
	return unique
}

func (d *Deduplicator) isFuzzyDuplicate(sig string, accepted []string) bool {
	for _, other := range accepted {
		if Similarity(sig, other) >= d.threshold {
			return true
		}
	}
	return false
}

// signature builds the fuzzy-match key from title and institution. Returns
// "" when neither is present, which skips the fuzzy tier entirely.
func signature(p types.RawPosting) string {
	var parts []string
	if t := strings.TrimSpace(p.Title); t != "" {
		parts = append(parts, strings.ToLower(t))
	}
	if inst := strings.TrimSpace(p.Institution); inst != "" {
		parts = append(parts, strings.ToLower(inst))
	}
	return strings.Join(parts, " | ")
}

// Similarity scores two strings 0-100 using a token-sort edit-distance
// ratio: tokens are sorted before comparison so word order does not matter.
func Similarity(a, b string) int {
	sa, sb := tokenSort(a), tokenSort(b)
	if sa == sb {
		return 100
	}
	longest := max(len([]rune(sa)), len([]rune(sb)))
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(sa, sb)
	return (longest - dist) * 100 / longest
}

func tokenSort(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
