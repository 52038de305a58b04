package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisVersionV3 is the current schema version of the simplified v3
// pipeline.
const AnalysisVersionV3 = "v3.0"

// V3Kind classifies what kind of result a paper reports.
type V3Kind string

const (
	V3KindNewMethod   V3Kind = "new_method"
	V3KindImprovement V3Kind = "improvement"
	V3KindBenchmark   V3Kind = "benchmark"
	V3KindAnalysis    V3Kind = "analysis"
	V3KindTooling     V3Kind = "tooling"
)

// ValidV3Kinds lists every accepted V3Kind value.
var ValidV3Kinds = []V3Kind{
	V3KindNewMethod,
	V3KindImprovement,
	V3KindBenchmark,
	V3KindAnalysis,
	V3KindTooling,
}

// PracticalValueScore is the v3 3-check, 0-6 point rubric. Total is always
// recomputed as the sum of the three parts; a mismatching model-reported
// total is corrected, never rejected.
type PracticalValueScore struct {
	RealProblem    int `json:"real_problem"`
	ConcreteResult int `json:"concrete_result"`
	ActuallyUsable int `json:"actually_usable"`
	Total          int `json:"total"`
}

// ComputeTotal sums the three sub-scores.
func (s *PracticalValueScore) ComputeTotal() int {
	return s.RealProblem + s.ConcreteResult + s.ActuallyUsable
}

// V3Card is the simplified 10-field v3 analysis schema.
type V3Card struct {
	HookSentence   string              `json:"hook_sentence"`
	Kind           V3Kind              `json:"kind"`
	TimeToValue    TimeToValue         `json:"time_to_value"`
	ImpactTags     []string            `json:"impact_tags"`
	PracticalValue PracticalValueScore `json:"practical_value"`
	KeyNumbers     []string            `json:"key_numbers"`
	ReadinessLevel ReadinessLevel      `json:"readiness_level"`
	WhatChanges    []string            `json:"what_changes"`
}

// V3Analysis is the persisted v3 analysis row. At most one row exists per
// (PaperID, AnalysisVersion).
type V3Analysis struct {
	ID              uuid.UUID
	PaperID         uuid.UUID
	AnalysisVersion string
	Model           string
	Status          AnalysisStatus
	Card            V3Card
	Issues          []ValidationIssue
	PromptHash      string
	TokensUsed      int64
	CreatedAt       time.Time
}
