package domain

import "time"

// Event types published to the lifecycle event stream.
const (
	EventTypePaperIngested      = "paper.ingested"
	EventTypeIngestionCompleted = "ingestion.run_completed"
	EventTypeBackfillEnqueued   = "backfill.enqueued"
	EventTypeBatchStarted       = "batch.started"
	EventTypeBatchCompleted     = "batch.completed"
	EventTypeAnalysisCompleted  = "analysis.completed"
	EventTypeBudgetRejected     = "budget.rejected"
	EventTypeToggleChanged      = "toggle.changed"
)

// Event is a lifecycle event published to the event stream. AggregateID is
// the entity the event is about (paper ID, batch ID, run date) and doubles
// as the partition key.
type Event struct {
	EventID     string      `json:"event_id"`
	EventType   string      `json:"event_type"`
	AggregateID string      `json:"aggregate_id"`
	Payload     interface{} `json:"payload"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Source      string      `json:"source"`
}

// PaperIngestedPayload is the payload for paper.ingested events.
type PaperIngestedPayload struct {
	PaperID         string `json:"paper_id"`
	ExternalID      string `json:"external_id"`
	PrimaryCategory string `json:"primary_category"`
}

// BatchCompletedPayload is the payload for batch.completed events.
type BatchCompletedPayload struct {
	BatchID         string `json:"batch_id"`
	AnalysisVersion string `json:"analysis_version"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	TotalTokens     int64  `json:"total_tokens"`
	SpentCents      int64  `json:"spent_cents"`
}

// BudgetRejectedPayload is the payload for budget.rejected events.
type BudgetRejectedPayload struct {
	Window         string `json:"window"`
	LimitCents     int64  `json:"limit_cents"`
	SpentCents     int64  `json:"spent_cents"`
	ProjectedCents int64  `json:"projected_cents"`
}
