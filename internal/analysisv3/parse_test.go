package analysisv3

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// validV3JSON returns a fully valid model response, with optional raw-JSON
// field overrides.
func validV3JSON(overrides map[string]string) string {
	fields := map[string]string{
		"hook_sentence":   `"Inference cost drops 40% with one config change."`,
		"kind":            `"improvement"`,
		"time_to_value":   `"now"`,
		"impact_tags":     `["cost", "serving"]`,
		"practical_value": `{"real_problem": 2, "concrete_result": 2, "actually_usable": 1, "total": 5}`,
		"key_numbers":     `["latency: -40%", "accuracy: -0.1%"]`,
		"readiness_level": `"evaluated"`,
		"what_changes":    `["Serving gets cheaper immediately.", "Batch sizes can grow."]`,
	}
	for k, v := range overrides {
		fields[k] = v
	}
	out := "{"
	first := true
	for k, v := range fields {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf("%q: %s", k, v)
	}
	return out + "}"
}

func TestParseStrict_Valid(t *testing.T) {
	card, failures, err := ParseStrict(validV3JSON(nil))
	require.NoError(t, err)
	require.Empty(t, failures)

	assert.Equal(t, domain.V3KindImprovement, card.Kind)
	assert.Equal(t, domain.TimeToValueNow, card.TimeToValue)
	assert.Equal(t, 5, card.PracticalValue.Total)
	assert.Len(t, card.WhatChanges, 2)
}

func TestParseStrict_TotalAlwaysRecomputed(t *testing.T) {
	// Model arithmetic is wrong: 2+2+1 = 5, model says 6. Silently corrected.
	card, failures, err := ParseStrict(validV3JSON(map[string]string{
		"practical_value": `{"real_problem": 2, "concrete_result": 2, "actually_usable": 1, "total": 6}`,
	}))
	require.NoError(t, err)
	require.Empty(t, failures)
	assert.Equal(t, 5, card.PracticalValue.Total)
	assert.Equal(t, card.PracticalValue.ComputeTotal(), card.PracticalValue.Total)
}

func TestParseStrict_Failures(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]string
		field    string
	}{
		{"missing hook", map[string]string{"hook_sentence": `""`}, "hook_sentence"},
		{"unknown kind", map[string]string{"kind": `"revolution"`}, "kind"},
		{"missing time_to_value", map[string]string{"time_to_value": `null`}, "time_to_value"},
		{"too many impact tags", map[string]string{"impact_tags": `["a","b","c","d"]`}, "impact_tags"},
		{"empty impact tags", map[string]string{"impact_tags": `[]`}, "impact_tags"},
		{"score out of range", map[string]string{"practical_value": `{"real_problem": 7, "concrete_result": 1, "actually_usable": 1, "total": 9}`}, "practical_value"},
		{"missing practical_value", map[string]string{"practical_value": `null`}, "practical_value"},
		{"one what_changes", map[string]string{"what_changes": `["only one"]`}, "what_changes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, failures, err := ParseStrict(validV3JSON(tt.override))
			require.NoError(t, err)
			require.NotEmpty(t, failures)
			assert.Equal(t, tt.field, failures[0].Field)
		})
	}
}

func TestParseStrict_InvalidJSON(t *testing.T) {
	_, _, err := ParseStrict("the paper seems fine to me")
	require.Error(t, err)
}

func TestBuildPartial(t *testing.T) {
	paper := &domain.Paper{Title: "Linear Attention at Scale", Abstract: "We present a method."}

	t.Run("unparseable response defaults every field", func(t *testing.T) {
		outcome := BuildPartial("not json", paper, nil)

		issues, partial := outcome.Partial()
		require.True(t, partial)
		require.NotEmpty(t, issues)
		assert.Equal(t, domain.AnalysisStatusPartial, outcome.Status())

		card := outcome.Card()
		assert.Equal(t, paper.Title, card.HookSentence)
		assert.Equal(t, defaultKind, card.Kind)
		assert.Equal(t, defaultTimeToValue, card.TimeToValue)
		assert.Equal(t, defaultReadiness, card.ReadinessLevel)
		assert.NotNil(t, card.ImpactTags)
		assert.Empty(t, card.ImpactTags)
		assert.Equal(t, 0, card.PracticalValue.Total)
	})

	t.Run("keeps the salvageable fields", func(t *testing.T) {
		content := validV3JSON(map[string]string{
			"kind":         `"paradigm shift"`,
			"what_changes": `[]`,
		})
		outcome := BuildPartial(content, paper, nil)

		_, partial := outcome.Partial()
		require.True(t, partial)

		card := outcome.Card()
		assert.Equal(t, "Inference cost drops 40% with one config change.", card.HookSentence)
		assert.Equal(t, defaultKind, card.Kind, "unknown kind falls back to the safe default")
		assert.Equal(t, domain.TimeToValueNow, card.TimeToValue)
		assert.Equal(t, 5, card.PracticalValue.Total)
		assert.Empty(t, card.WhatChanges)
	})

	t.Run("clamps out-of-range scores and recomputes total", func(t *testing.T) {
		content := validV3JSON(map[string]string{
			"practical_value": `{"real_problem": 9, "concrete_result": -1, "actually_usable": 1, "total": 0}`,
		})
		outcome := BuildPartial(content, paper, nil)

		card := outcome.Card()
		assert.Equal(t, 2, card.PracticalValue.RealProblem)
		assert.Equal(t, 0, card.PracticalValue.ConcreteResult)
		assert.Equal(t, 3, card.PracticalValue.Total)
	})
}
