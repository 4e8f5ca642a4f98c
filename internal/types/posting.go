// Package types defines the shared domain types for the scholarwatch pipeline:
// raw postings collected from sources, canonical posting records, snapshots,
// enrichment rows, and pipeline run audit entries.
package types

import "time"

// OpenStatus is the lifecycle status of a posting.
type OpenStatus string

// Lifecycle states. The verifier only ever moves a posting from open to
// closed; closed is terminal. StatusUnknown is reserved and never produced.
const (
	StatusOpen    OpenStatus = "open"
	StatusClosed  OpenStatus = "closed"
	StatusUnknown OpenStatus = "unknown"
)

// RankBucket is a standardised academic seniority bucket.
type RankBucket string

// The closed rank taxonomy.
const (
	RankProfessor          RankBucket = "professor"
	RankAssociateProfessor RankBucket = "associate_professor"
	RankAssistantProfessor RankBucket = "assistant_professor"
	RankResearchFellow     RankBucket = "research_fellow"
	RankPostdoc            RankBucket = "postdoc"
	RankOther              RankBucket = "other"
)

// RankSource records how a rank bucket was determined.
type RankSource string

const (
	// RankSourceRules means an ordered pattern rule matched the title.
	RankSourceRules RankSource = "rules"
	// RankSourceFallback means the LLM fallback classifier decided.
	RankSourceFallback RankSource = "llm"
)

// RawPosting is a posting as collected from a source adapter, before
// normalization. It only exists within a single pipeline run.
type RawPosting struct {
	URL         string
	Title       string
	Institution string
	SourceID    string
	ContentText string
	ContentHTML string
	ClosingDate string
	Language    string
}

// Posting is a canonical posting record as stored in the database.
// Identity is SHA-256 of the canonical URL truncated to 16 hex characters.
type Posting struct {
	PostingID          string
	URLCanonical       string
	URLOriginal        string
	SourceID           string
	JobTitle           string
	Institution        string
	Department         string
	City               string
	Country            string
	Language           string
	ContractType       string
	FTE                float64
	SalaryMin          float64
	SalaryMax          float64
	Currency           string
	ClosingDate        string
	InterviewDate      string
	TopicTags          []string
	RankBucket         RankBucket
	RankSource         RankSource
	RelevanceScore     float64
	HasRelevance       bool
	SeniorityMatch     bool
	RelevanceRationale string
	Synopsis           string
	OpenStatus         OpenStatus
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
	EmailedAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PostingUpdate is a typed partial update for a posting. Nil fields are left
// untouched by the merge; set fields overwrite. Status only ever advances
// toward closed.
type PostingUpdate struct {
	JobTitle           *string
	Institution        *string
	Department         *string
	City               *string
	Country            *string
	Language           *string
	ContractType       *string
	FTE                *float64
	SalaryMin          *float64
	SalaryMax          *float64
	Currency           *string
	ClosingDate        *string
	InterviewDate      *string
	TopicTags          []string
	RankBucket         *RankBucket
	RankSource         *RankSource
	RelevanceScore     *float64
	SeniorityMatch     *bool
	RelevanceRationale *string
	Synopsis           *string
	OpenStatus         *OpenStatus
}

// IsEmpty reports whether the update carries no field changes.
func (u *PostingUpdate) IsEmpty() bool {
	if u == nil {
		return true
	}
	return u.JobTitle == nil && u.Institution == nil && u.Department == nil &&
		u.City == nil && u.Country == nil && u.Language == nil &&
		u.ContractType == nil && u.FTE == nil && u.SalaryMin == nil &&
		u.SalaryMax == nil && u.Currency == nil && u.ClosingDate == nil &&
		u.InterviewDate == nil && u.TopicTags == nil && u.RankBucket == nil &&
		u.RankSource == nil && u.RelevanceScore == nil && u.SeniorityMatch == nil &&
		u.RelevanceRationale == nil && u.Synopsis == nil && u.OpenStatus == nil
}

// Snapshot is a timestamped capture of a posting's source text, stored only
// when the content hash differs from the latest stored snapshot.
type Snapshot struct {
	SnapshotID  int64
	PostingID   string
	ContentText string
	ContentHTML string
	ContentHash string
	FetchedAt   time.Time
}

// Str returns a pointer to s, for building PostingUpdate values.
func Str(s string) *string { return &s }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
