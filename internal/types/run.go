package types

import "time"

// TaskType identifies an enrichment task.
type TaskType string

// Enrichment task types.
const (
	TaskRelevance    TaskType = "relevance"
	TaskExtraction   TaskType = "extraction"
	TaskSynopsis     TaskType = "synopsis"
	TaskRankFallback TaskType = "rank_fallback"
)

// Enrichment is a cached provider result, content-addressed by
// (task type, SHA-256(prompt version ":" input text)).
type Enrichment struct {
	EnrichmentID  int64
	PostingID     string
	TaskType      TaskType
	PromptVersion string
	ModelID       string
	InputHash     string
	OutputJSON    string
	CreatedAt     time.Time
}

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats holds the counters reported by one pipeline run.
type RunStats struct {
	PostingsFound   int
	PostingsNew     int
	PostingsUpdated int
	EnrichmentsMade int
	EmailsSent      int
}

// PipelineRun is an append-only audit record of one orchestrator invocation.
type PipelineRun struct {
	RunID      int64
	RunKey     string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Stats      RunStats
	Errors     []string
	Metadata   map[string]string
}
