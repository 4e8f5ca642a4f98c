// Package config provides configuration loading and validation for the
// pipeline. Configuration is an immutable value: it is loaded once at startup
// and passed by dependency injection into the components that need it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config is the full pipeline configuration. All fields are optional in the
// JSON file; missing values fall back to defaults. API keys come from the
// environment only.
type Config struct {
	// DBPath is the SQLite database file. The store creates it if missing.
	DBPath string `json:"db_path" validate:"required"`

	// UserAgent identifies the crawler to external sources.
	UserAgent string `json:"user_agent" validate:"required"`

	// FuzzyThreshold is the minimum similarity score (0-100) at which two
	// batch candidates are considered near-duplicates.
	FuzzyThreshold int `json:"fuzzy_threshold" validate:"gte=0,lte=100"`

	// TrackingParams are query parameters stripped during URL canonicalization.
	TrackingParams []string `json:"tracking_params"`

	// EnrichCallCap bounds the number of provider calls per run.
	EnrichCallCap int `json:"enrich_call_cap" validate:"gt=0"`

	// VerifyLimit bounds the number of postings re-fetched per run.
	VerifyLimit int `json:"verify_limit" validate:"gt=0"`

	// RelevanceThreshold is the minimum relevance score for digest inclusion.
	RelevanceThreshold float64 `json:"relevance_threshold" validate:"gte=0,lte=1"`

	// ExpiryDays controls when closed postings are removed by cleanup.
	ExpiryDays int `json:"expiry_days" validate:"gt=0"`

	RankBuckets []RankBucketConfig `json:"rank_buckets" validate:"required,dive"`
	Keywords    Keywords           `json:"keywords"`
	Sources     []SourceConfig     `json:"sources" validate:"required,dive"`
	Verify      VerifyConfig       `json:"verify"`
	Notify      NotifyConfig       `json:"notify"`

	// Secrets, environment only.
	GeminiAPIKey string `json:"-"`
	ResendAPIKey string `json:"-"`
}

// RankBucketConfig is one entry in the ordered rank rule table. Bucket order
// and pattern order are significant: the first matching pattern wins.
type RankBucketConfig struct {
	Key      string   `json:"key" validate:"required"`
	Label    string   `json:"label"`
	Target   bool     `json:"target"`
	Patterns []string `json:"patterns"`
}

// Keywords feed adapter search queries.
type Keywords struct {
	Thematic        []string `json:"thematic"`
	SeniorityTitles []string `json:"seniority_titles"`
}

// SourceConfig enables an adapter and sets its polite-crawl interval.
type SourceConfig struct {
	ID               string  `json:"id" validate:"required"`
	Enabled          bool    `json:"enabled"`
	RateLimitSeconds float64 `json:"rate_limit_seconds" validate:"gte=0"`
}

// VerifyConfig drives closing-date extraction and closed-page detection.
type VerifyConfig struct {
	// ClosingKeywords signal a closing date in nearby text.
	ClosingKeywords []string `json:"closing_keywords"`
	// ClosedPhrases mark a posting as closed/filled when present in page text.
	ClosedPhrases []string `json:"closed_phrases"`
	// WindowSize is how many characters after a keyword are scanned for a date.
	WindowSize int `json:"window_size" validate:"gt=0"`
}

// NotifyConfig configures the email digest.
type NotifyConfig struct {
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	MaxPostings int    `json:"max_postings" validate:"gt=0"`
}

// Default returns the built-in configuration, including the default rank rule
// table and the default tracking parameter set.
func Default() *Config {
	return &Config{
		DBPath:             "data/scholarwatch.sqlite",
		UserAgent:          "scholarwatch/1.0 (academic job discovery)",
		FuzzyThreshold:     85,
		TrackingParams:     []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term", "ref", "fbclid", "gclid", "mc_cid", "mc_eid"},
		EnrichCallCap:      200,
		VerifyLimit:        200,
		RelevanceThreshold: 0.3,
		ExpiryDays:         90,
		RankBuckets:        defaultRankBuckets(),
		Keywords: Keywords{
			Thematic:        []string{"psychology", "clinical psychology", "health psychology", "organisational psychology"},
			SeniorityTitles: []string{"senior lecturer", "reader", "associate professor", "principal lecturer"},
		},
		Sources: []SourceConfig{
			{ID: "jobs_ac_uk", Enabled: true, RateLimitSeconds: 2},
			{ID: "nature_careers", Enabled: true, RateLimitSeconds: 2},
			{ID: "euraxess", Enabled: true, RateLimitSeconds: 3},
		},
		Verify: VerifyConfig{
			ClosingKeywords: []string{
				"closing date", "deadline", "apply by", "applications close",
				"last date", "close date", "application deadline",
				"ansoegningsfrist", "ansokningsfrist", "soknadsfrist",
			},
			ClosedPhrases: []string{
				"this vacancy has closed",
				"this position has been filled",
				"applications are now closed",
				"this job is no longer available",
				"the deadline has passed",
				"recruitment is closed",
				"stillingen er besat",
				"ansoegningsfristen er udloebet",
			},
			WindowSize: 200,
		},
		Notify: NotifyConfig{
			Sender:      "digest@scholarwatch.dev",
			Recipient:   "",
			MaxPostings: 50,
		},
	}
}

// defaultRankBuckets returns the ordered rank rule table. More specific
// buckets come before the bare professor bucket so that, for example,
// "Associate Professor" never lands in the professor bucket.
func defaultRankBuckets() []RankBucketConfig {
	return []RankBucketConfig{
		{
			Key:    "associate_professor",
			Label:  "Associate Professor / Senior Lecturer / Reader",
			Target: true,
			Patterns: []string{
				`associate professor`,
				`senior lecturer`,
				`\breader\b`,
				`principal lecturer`,
				`\bdocent\b`,
			},
		},
		{
			Key:   "assistant_professor",
			Label: "Assistant Professor / Lecturer",
			Patterns: []string{
				`assistant professor`,
				`\blecturer\b`,
				`tenure[- ]track`,
				`\badjunkt\b`,
			},
		},
		{
			Key:   "postdoc",
			Label: "Postdoctoral Researcher",
			Patterns: []string{
				`post[- ]?doc`,
				`postdoctoral`,
			},
		},
		{
			Key:   "research_fellow",
			Label: "Research Fellow / Research Associate",
			Patterns: []string{
				`research fellow`,
				`research associate`,
				`research scientist`,
			},
		},
		{
			Key:   "professor",
			Label: "Full Professor / Chair",
			Patterns: []string{
				`\bprofessor\b`,
				`professorship`,
				`\bchair\b`,
			},
		},
		{
			Key:   "other",
			Label: "Other / Unclassified",
		},
	}
}

// Load reads a config file (if path is non-empty), overlays it on the
// defaults, applies environment secrets, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[string]bool, len(c.RankBuckets))
	for _, b := range c.RankBuckets {
		if seen[b.Key] {
			return fmt.Errorf("config error: duplicate rank bucket %q", b.Key)
		}
		seen[b.Key] = true
	}
	if !seen["other"] {
		return fmt.Errorf("config error: rank bucket table must include %q", "other")
	}
	return nil
}

// SourceInterval returns the configured polite-crawl interval for a source,
// or the fallback when the source is not configured.
func (c *Config) SourceInterval(sourceID string) float64 {
	for _, s := range c.Sources {
		if s.ID == sourceID {
			return s.RateLimitSeconds
		}
	}
	return 2
}
