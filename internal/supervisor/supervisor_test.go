package supervisor

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/temporal"
)

func newTestSupervisor(t *testing.T, registrations []temporal.Registration) *Supervisor {
	t.Helper()
	s, err := New(&config.Config{}, nil, nil, nil, nil, registrations, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestNew_RejectsUnknownQueue(t *testing.T) {
	_, err := New(&config.Config{}, nil, nil, nil, nil, []temporal.Registration{
		{Queue: "not-a-queue"},
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task queue")
}

func TestRunning_ReportsStoppedWorkers(t *testing.T) {
	s := newTestSupervisor(t, []temporal.Registration{
		{Queue: temporal.QueueFetch},
		{Queue: temporal.QueueAnalyzeV3},
	})

	state := s.Running()
	assert.Equal(t, map[string]bool{
		temporal.QueueFetch:     false,
		temporal.QueueAnalyzeV3: false,
	}, state)
}

func TestOnConfigChange_IgnoresOtherKeysAndBadValues(t *testing.T) {
	// No gated queues registered, so a toggle event must be a no-op rather
	// than a panic against the nil client.
	s := newTestSupervisor(t, []temporal.Registration{
		{Queue: temporal.QueueAnalyzeV3},
	})

	s.onConfigChange(configstore.Event{Key: configstore.KeyDailyBudgetCents, Value: "750"})
	s.onConfigChange(configstore.Event{Key: configstore.KeyAIEnabled, Value: "not-a-bool"})
	s.onConfigChange(configstore.Event{Key: configstore.KeyAIEnabled, Value: "false"})

	assert.False(t, s.Running()[temporal.QueueAnalyzeV3], "v3 is never touched by the AI toggle")
}

func TestAIGatedQueuesAreGated(t *testing.T) {
	s := newTestSupervisor(t, nil)
	for _, queue := range temporal.AIGatedQueues() {
		assert.True(t, s.gated[queue], queue)
	}
	assert.False(t, s.gated[temporal.QueueAnalyzeV3])
}
