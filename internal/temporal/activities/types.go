// Package activities implements the Temporal activities behind every job
// family. Activity structs carry their dependencies; methods are registered
// with the family's worker.
package activities

import (
	"time"

	"github.com/google/uuid"
)

// NewPaperRef identifies a freshly inserted paper for follow-on jobs.
type NewPaperRef struct {
	PaperID    uuid.UUID `json:"paper_id"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
}

// IngestInput drives one ingestion activity run over a category list.
type IngestInput struct {
	// Categories to fetch; errors in one category do not abort the others.
	Categories []string `json:"categories"`

	// RunDate keys the ingestion ledger rows.
	RunDate time.Time `json:"run_date"`

	// Backfill selects date-range fetching for [From, To]; when false the
	// newest MaxPerCategory papers are fetched instead.
	Backfill bool      `json:"backfill"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`

	// MaxPerCategory is the fetch page size.
	MaxPerCategory int `json:"max_per_category"`
}

// CategoryResult reports one category's outcome within an ingest run.
type CategoryResult struct {
	Category   string `json:"category"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Error      string `json:"error,omitempty"`
}

// IngestResult aggregates an ingest run across categories.
type IngestResult struct {
	PerCategory []CategoryResult `json:"per_category"`
	NewPapers   []NewPaperRef    `json:"new_papers,omitempty"`
	Inserted    int              `json:"inserted"`
	Duplicates  int              `json:"duplicates"`
	Failed      int              `json:"failed"`
}

// AnalyzeInput identifies one per-paper analysis job (v1 or v3).
type AnalyzeInput struct {
	PaperID uuid.UUID `json:"paper_id"`
	Force   bool      `json:"force"`
}

// AnalyzeOutput reports one analysis activity's outcome.
type AnalyzeOutput struct {
	Skipped    bool   `json:"skipped"`
	Status     string `json:"status"`
	TokensUsed int64  `json:"tokens_used"`
}

// BatchJobInput identifies one v3 batch job.
type BatchJobInput struct {
	BatchID uuid.UUID `json:"batch_id"`
	JobID   uuid.UUID `json:"job_id"`
	PaperID uuid.UUID `json:"paper_id"`
}

// BatchJobOutput reports one batch job's terminal state and the rollup it
// produced.
type BatchJobOutput struct {
	Succeeded       bool   `json:"succeeded"`
	Status          string `json:"status,omitempty"`
	TokensUsed      int64  `json:"tokens_used"`
	BatchCompleted  bool   `json:"batch_completed"`
	CompletedCount  int    `json:"completed_count"`
	FailedCount     int    `json:"failed_count"`
	BatchSize       int    `json:"batch_size"`
	ErrorDetail     string `json:"error_detail,omitempty"`
	SpentCents      int64  `json:"spent_cents"`
	AlreadyTerminal bool   `json:"already_terminal"`
}

// MentionInput identifies the paper a mention sweep is about.
type MentionInput struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
}
