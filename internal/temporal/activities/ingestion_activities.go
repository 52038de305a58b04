package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/papersources"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// IngestionActivities fetch papers from the external source and persist
// them, deduplicated across categories by external ID.
type IngestionActivities struct {
	source  papersources.PaperSource
	papers  repository.PaperRepository
	runs    repository.IngestionRepository
	emitter events.Emitter
	metrics *observability.Metrics
}

// NewIngestionActivities creates the ingestion activity set. The emitter may
// be a NopEmitter and metrics may be nil.
func NewIngestionActivities(
	source papersources.PaperSource,
	papers repository.PaperRepository,
	runs repository.IngestionRepository,
	emitter events.Emitter,
	metrics *observability.Metrics,
) *IngestionActivities {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &IngestionActivities{
		source:  source,
		papers:  papers,
		runs:    runs,
		emitter: emitter,
		metrics: metrics,
	}
}

// IngestCategories fetches every category in the input. One category
// failing is recorded in its result and does not abort the siblings; the
// activity errors only when no category succeeded. Papers appearing in
// several categories are inserted once, keeping the metadata from the first
// encounter.
func (a *IngestionActivities) IngestCategories(ctx context.Context, input IngestInput) (*IngestResult, error) {
	logger := activity.GetLogger(ctx)

	kind := domain.IngestionRunKindRecent
	if input.Backfill {
		kind = domain.IngestionRunKindBackfill
	}

	result := &IngestResult{PerCategory: make([]CategoryResult, 0, len(input.Categories))}
	// Cross-category dedup for this run; the unique (source, external_id)
	// constraint backstops it across runs and replicas.
	seen := make(map[string]bool)

	for _, category := range input.Categories {
		catResult := a.ingestCategory(ctx, category, kind, input, seen)
		if catResult.Error != "" {
			logger.Warn("category ingest failed", "category", category, "error", catResult.Error)
			result.Failed++
			if a.metrics != nil {
				a.metrics.RecordIngestionFetchError(category)
			}
		}
		result.Inserted += catResult.Inserted
		result.Duplicates += catResult.Duplicates
		result.PerCategory = append(result.PerCategory, catResult.CategoryResult)
		result.NewPapers = append(result.NewPapers, catResult.newPapers...)
	}

	if a.metrics != nil && result.Duplicates > 0 {
		a.metrics.RecordPaperDuplicates(result.Duplicates)
	}
	if len(input.Categories) > 0 && result.Failed == len(input.Categories) {
		return result, fmt.Errorf("all %d categories failed to ingest", result.Failed)
	}

	logger.Info("ingest run finished",
		"kind", string(kind),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"failed_categories", result.Failed,
	)
	return result, nil
}

type categoryOutcome struct {
	CategoryResult
	newPapers []NewPaperRef
}

func (a *IngestionActivities) ingestCategory(ctx context.Context, category string, kind domain.IngestionRunKind, input IngestInput, seen map[string]bool) categoryOutcome {
	outcome := categoryOutcome{CategoryResult: CategoryResult{Category: category}}

	run, err := a.runs.StartRun(ctx, input.RunDate, category, kind)
	if err != nil {
		outcome.Error = fmt.Sprintf("start ledger row: %v", err)
		return outcome
	}

	cursor := run.ResumeCursor
	for {
		page, err := a.fetchPage(ctx, category, input, cursor)
		if err != nil {
			outcome.Error = fmt.Sprintf("fetch at offset %d: %v", cursor, err)
			detail := outcome.Error
			_ = a.runs.FinishRun(ctx, run.ID, domain.IngestionRunStatusFailed, &detail)
			return outcome
		}

		for _, paper := range page.Papers {
			outcome.Fetched++
			if seen[paper.ExternalID] {
				outcome.Duplicates++
				continue
			}
			seen[paper.ExternalID] = true

			inserted, err := a.insertIfAbsent(ctx, paper)
			if err != nil {
				outcome.Error = fmt.Sprintf("insert %s: %v", paper.ExternalID, err)
				detail := outcome.Error
				_ = a.runs.FinishRun(ctx, run.ID, domain.IngestionRunStatusFailed, &detail)
				return outcome
			}
			if inserted == nil {
				outcome.Duplicates++
				continue
			}

			outcome.Inserted++
			outcome.newPapers = append(outcome.newPapers, NewPaperRef{
				PaperID:    inserted.ID,
				ExternalID: inserted.ExternalID,
				Title:      inserted.Title,
			})
			a.emitter.TryEmit(ctx, domain.Event{
				EventType:   domain.EventTypePaperIngested,
				AggregateID: inserted.ExternalID,
				Payload: domain.PaperIngestedPayload{
					PaperID:         inserted.ID.String(),
					ExternalID:      inserted.ExternalID,
					PrimaryCategory: inserted.PrimaryCategory,
				},
			})
		}

		cursor = page.NextOffset
		if err := a.runs.UpdateProgress(ctx, run.ID, outcome.Fetched, outcome.Inserted, outcome.Duplicates, cursor); err != nil {
			outcome.Error = fmt.Sprintf("update ledger: %v", err)
			detail := outcome.Error
			_ = a.runs.FinishRun(ctx, run.ID, domain.IngestionRunStatusFailed, &detail)
			return outcome
		}
		activity.RecordHeartbeat(ctx, cursor)

		// Recent fetches take one page; backfills page through the range.
		if !input.Backfill || !page.HasMore {
			break
		}
	}

	if a.metrics != nil {
		a.metrics.RecordPapersIngested(category, outcome.Inserted)
	}
	_ = a.runs.FinishRun(ctx, run.ID, domain.IngestionRunStatusCompleted, nil)
	return outcome
}

func (a *IngestionActivities) fetchPage(ctx context.Context, category string, input IngestInput, offset int) (*papersources.Page, error) {
	if input.Backfill {
		return a.source.FetchRange(ctx, category, input.From, input.To, offset, input.MaxPerCategory)
	}
	return a.source.FetchRecent(ctx, category, input.MaxPerCategory)
}

// insertIfAbsent inserts the paper unless a row with the same identity
// exists; a concurrent insert losing the race counts as a duplicate too.
func (a *IngestionActivities) insertIfAbsent(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	exists, err := a.papers.ExistsByExternalID(ctx, paper.Source, paper.ExternalID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	inserted, err := a.papers.Insert(ctx, paper)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, nil
		}
		return nil, err
	}
	return inserted, nil
}
