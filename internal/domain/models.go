// Package domain provides domain models and business logic for the paper
// analysis service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaperSource identifies the external source a paper was ingested from.
// These values must match the database enum paper_source.
type PaperSource string

const (
	PaperSourceArXiv PaperSource = "arxiv"
)

// Paper is a research paper ingested from an external source. Identity is
// (Source, ExternalID), unique together. Rows are immutable after insert
// except for the AI summary fields.
type Paper struct {
	ID              uuid.UUID
	Source          PaperSource
	ExternalID      string
	Title           string
	Abstract        string
	Authors         []string
	Categories      []string
	PrimaryCategory string
	PDFURL          string
	PublishedAt     time.Time
	FetchedAt       time.Time
	Summary         *string
	SummaryModel    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BatchStatus represents the lifecycle states of an analysis batch.
// These values must match the database enum batch_status.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// AnalysisBatch groups N per-paper analysis jobs. CompletedCount and
// FailedCount roll up from terminal job events; the batch transitions to
// completed exactly once, when CompletedCount+FailedCount reaches BatchSize.
type AnalysisBatch struct {
	ID                 uuid.UUID
	AnalysisVersion    string
	Status             BatchStatus
	BatchSize          int
	CompletedCount     int
	FailedCount        int
	TotalTokens        int64
	EstimatedCostCents int64
	SpentCents         int64
	PauseReason        *string
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Remaining returns how many jobs have not yet reached a terminal state.
func (b *AnalysisBatch) Remaining() int {
	return b.BatchSize - b.CompletedCount - b.FailedCount
}

// BatchJobStatus represents the state of a single per-paper batch job.
// These values must match the database enum batch_job_status.
type BatchJobStatus string

const (
	BatchJobStatusPending   BatchJobStatus = "pending"
	BatchJobStatusRunning   BatchJobStatus = "running"
	BatchJobStatusCompleted BatchJobStatus = "completed"
	BatchJobStatusFailed    BatchJobStatus = "failed"
)

// IsTerminal returns true if the job status represents a final state.
func (s BatchJobStatus) IsTerminal() bool {
	switch s {
	case BatchJobStatusCompleted, BatchJobStatusFailed:
		return true
	default:
		return false
	}
}

// BatchJob tracks one paper's analysis within a batch.
type BatchJob struct {
	ID          uuid.UUID
	BatchID     uuid.UUID
	PaperID     uuid.UUID
	Status      BatchJobStatus
	TokensUsed  int64
	ErrorDetail *string
	StartedAt   *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IngestionRunKind distinguishes scheduled recent fetches from backfills.
type IngestionRunKind string

const (
	IngestionRunKindRecent   IngestionRunKind = "recent"
	IngestionRunKindBackfill IngestionRunKind = "backfill"
)

// IngestionRunStatus represents the state of an ingestion ledger row.
// These values must match the database enum ingestion_run_status.
type IngestionRunStatus string

const (
	IngestionRunStatusRunning   IngestionRunStatus = "running"
	IngestionRunStatusCompleted IngestionRunStatus = "completed"
	IngestionRunStatusFailed    IngestionRunStatus = "failed"
)

// IngestionRun is one ledger row per (run date, category) recording expected
// versus fetched totals and a resume cursor for re-entrant backfill.
type IngestionRun struct {
	ID             uuid.UUID
	RunDate        time.Time
	Category       string
	Kind           IngestionRunKind
	Status         IngestionRunStatus
	ExpectedCount  int
	FetchedCount   int
	InsertedCount  int
	DuplicateCount int
	ResumeCursor   int
	ErrorDetail    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaxonomyStatus represents the review state of a use-case taxonomy entry.
// These values must match the database enum taxonomy_status.
type TaxonomyStatus string

const (
	TaxonomyStatusActive      TaxonomyStatus = "active"
	TaxonomyStatusProvisional TaxonomyStatus = "provisional"
	TaxonomyStatusDeprecated  TaxonomyStatus = "deprecated"
)

// TaxonomyEntry is a named use-case category that analyses map to. Entries
// proposed by the model are always inserted as provisional and are never
// auto-promoted.
type TaxonomyEntry struct {
	ID         uuid.UUID
	Name       string
	Definition string
	Inclusions []string
	Exclusions []string
	Examples   []string
	Synonyms   []string
	Status     TaxonomyStatus
	UsageCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
