package workflows

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

func TestIngestRecentWorkflow(t *testing.T) {
	t.Run("fans social monitors and news sweeps out for new papers", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var ingestAct *activities.IngestionActivities
		var enqueueAct *activities.EnqueueActivities

		newPapers := []activities.NewPaperRef{
			{PaperID: uuid.New(), ExternalID: "2401.00001", Title: "First"},
			{PaperID: uuid.New(), ExternalID: "2401.00002", Title: "Second"},
		}

		env.OnActivity(ingestAct.IngestCategories, mock.Anything, mock.MatchedBy(func(input activities.IngestInput) bool {
			return !input.Backfill && len(input.Categories) == 2
		})).Return(&activities.IngestResult{Inserted: 2, NewPapers: newPapers}, nil)

		env.OnActivity(enqueueAct.EnqueueSocialMonitors, mock.Anything, newPapers).Return(2, nil)
		env.OnActivity(enqueueAct.EnqueueNewsFetches, mock.Anything, newPapers).Return(2, nil)

		env.ExecuteWorkflow(IngestRecentWorkflow, IngestRecentInput{
			Categories:     []string{"cs.AI", "cs.LG"},
			MaxPerCategory: 100,
		})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result activities.IngestResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 2, result.Inserted)
		env.AssertExpectations(t)
	})

	t.Run("skips the fan-out when nothing is new", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var ingestAct *activities.IngestionActivities
		var enqueueAct *activities.EnqueueActivities

		env.OnActivity(ingestAct.IngestCategories, mock.Anything, mock.Anything).
			Return(&activities.IngestResult{Duplicates: 5}, nil)

		env.ExecuteWorkflow(IngestRecentWorkflow, IngestRecentInput{Categories: []string{"cs.AI"}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		env.AssertNotCalled(t, "EnqueueSocialMonitors", mock.Anything, mock.Anything)
		env.AssertNotCalled(t, "EnqueueNewsFetches", mock.Anything, mock.Anything)
		_ = enqueueAct
	})

	t.Run("fan-out failure does not fail the sweep", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var ingestAct *activities.IngestionActivities
		var enqueueAct *activities.EnqueueActivities

		env.OnActivity(ingestAct.IngestCategories, mock.Anything, mock.Anything).
			Return(&activities.IngestResult{
				Inserted:  1,
				NewPapers: []activities.NewPaperRef{{PaperID: uuid.New(), ExternalID: "2401.00003"}},
			}, nil)
		env.OnActivity(enqueueAct.EnqueueSocialMonitors, mock.Anything, mock.Anything).
			Return(0, fmt.Errorf("queue unavailable"))
		env.OnActivity(enqueueAct.EnqueueNewsFetches, mock.Anything, mock.Anything).
			Return(0, fmt.Errorf("queue unavailable"))

		env.ExecuteWorkflow(IngestRecentWorkflow, IngestRecentInput{Categories: []string{"cs.AI"}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
	})

	t.Run("ingest failure fails the workflow", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var ingestAct *activities.IngestionActivities

		env.OnActivity(ingestAct.IngestCategories, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("all 2 categories failed to ingest"))

		env.ExecuteWorkflow(IngestRecentWorkflow, IngestRecentInput{Categories: []string{"cs.AI", "cs.LG"}})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})
}

func TestIngestDateWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var ingestAct *activities.IngestionActivities
	var enqueueAct *activities.EnqueueActivities

	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	input := activities.IngestInput{
		Categories:     []string{"cs.AI"},
		RunDate:        date,
		Backfill:       true,
		From:           date,
		To:             date,
		MaxPerCategory: 100,
	}

	env.OnActivity(ingestAct.IngestCategories, mock.Anything, mock.MatchedBy(func(got activities.IngestInput) bool {
		return got.Backfill && got.From.Equal(date) && got.To.Equal(date)
	})).Return(&activities.IngestResult{
		Inserted:  1,
		NewPapers: []activities.NewPaperRef{{PaperID: uuid.New(), ExternalID: "2403.12000"}},
	}, nil)
	env.OnActivity(enqueueAct.EnqueueSocialMonitors, mock.Anything, mock.Anything).Return(1, nil)
	env.OnActivity(enqueueAct.EnqueueNewsFetches, mock.Anything, mock.Anything).Return(1, nil)

	env.ExecuteWorkflow(IngestDateWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result activities.IngestResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Inserted)
	env.AssertExpectations(t)
}

func TestGapSweepWorkflow(t *testing.T) {
	t.Run("enqueues a backfill per flagged date", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var gapAct *activities.GapActivities
		var enqueueAct *activities.EnqueueActivities

		flagged := []time.Time{
			time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		}

		env.OnActivity(gapAct.DetectGaps, mock.Anything).Return(flagged, nil)
		env.OnActivity(enqueueAct.EnqueueBackfills, mock.Anything, mock.MatchedBy(func(input activities.EnqueueBackfillsInput) bool {
			return len(input.Dates) == 2 && len(input.Categories) == 1
		})).Return(2, nil)

		env.ExecuteWorkflow(GapSweepWorkflow, GapSweepInput{Categories: []string{"cs.AI"}, MaxPerCategory: 100})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result GapSweepResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 2, result.Flagged)
		assert.Equal(t, 2, result.Enqueued)
		env.AssertExpectations(t)
	})

	t.Run("no gaps means no enqueues", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		var gapAct *activities.GapActivities

		env.OnActivity(gapAct.DetectGaps, mock.Anything).Return([]time.Time{}, nil)

		env.ExecuteWorkflow(GapSweepWorkflow, GapSweepInput{Categories: []string{"cs.AI"}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		env.AssertNotCalled(t, "EnqueueBackfills", mock.Anything, mock.Anything)

		var result GapSweepResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Zero(t, result.Flagged)
	})
}
