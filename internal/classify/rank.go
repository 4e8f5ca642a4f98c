// Package classify maps free-text job titles to the closed rank taxonomy
// using an ordered table of case-insensitive pattern rules.
package classify

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/types"
)

type bucketRules struct {
	key      types.RankBucket
	target   bool
	patterns []*regexp.Regexp
}

// Classifier evaluates the rank rule table. Buckets are tried in table
// order, patterns within a bucket in list order; the first match wins.
// This ordering is the tie-break that keeps "Associate Professor" out of
// the bare professor bucket.
type Classifier struct {
	buckets []bucketRules
	targets map[types.RankBucket]bool
}

// New compiles a Classifier from the configured rule table. A pattern that
// fails to compile is logged and skipped, never fatal.
func New(table []config.RankBucketConfig, log zerolog.Logger) *Classifier {
	c := &Classifier{targets: make(map[types.RankBucket]bool, len(table))}
	for _, b := range table {
		rules := bucketRules{key: types.RankBucket(b.Key), target: b.Target}
		for _, p := range b.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				log.Warn().Str("bucket", b.Key).Str("pattern", p).Err(err).
					Msg("invalid rank pattern, skipping")
				continue
			}
			rules.patterns = append(rules.patterns, re)
		}
		c.buckets = append(c.buckets, rules)
		c.targets[rules.key] = b.Target
	}
	return c
}

// Classify maps a title to a rank bucket. Unmatched or empty titles land in
// RankOther. The returned source is always RankSourceRules; the LLM fallback
// path stamps its own provenance.
func (c *Classifier) Classify(title string) (types.RankBucket, types.RankSource) {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return types.RankOther, types.RankSourceRules
	}
	for _, b := range c.buckets {
		for _, re := range b.patterns {
			if re.MatchString(t) {
				return b.key, types.RankSourceRules
			}
		}
	}
	return types.RankOther, types.RankSourceRules
}

// IsTargetSeniority reports whether a bucket is configured as the target
// seniority level.
func (c *Classifier) IsTargetSeniority(bucket types.RankBucket) bool {
	return c.targets[bucket]
}
