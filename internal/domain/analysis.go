package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the three-tier quality status stored with every analysis.
// These values must match the database enum analysis_status.
type AnalysisStatus string

const (
	AnalysisStatusComplete      AnalysisStatus = "complete"
	AnalysisStatusPartial       AnalysisStatus = "partial"
	AnalysisStatusLowConfidence AnalysisStatus = "low_confidence"
)

// AnalysisVersionV1 is the current schema version of the structured paper
// card pipeline. Bumping it invalidates the idempotency check and allows
// papers to be re-analyzed under the new schema.
const AnalysisVersionV1 = "dtlp-1.2"

// PaperRole classifies what a paper primarily contributes.
type PaperRole string

const (
	PaperRoleCapability     PaperRole = "capability"
	PaperRoleEfficiency     PaperRole = "efficiency"
	PaperRoleUnderstanding  PaperRole = "understanding"
	PaperRoleInfrastructure PaperRole = "infrastructure"
	PaperRoleSafety         PaperRole = "safety"
)

// ValidRoles lists every accepted PaperRole value.
var ValidRoles = []PaperRole{
	PaperRoleCapability,
	PaperRoleEfficiency,
	PaperRoleUnderstanding,
	PaperRoleInfrastructure,
	PaperRoleSafety,
}

// TimeToValue estimates how soon a paper's result is usable in practice.
type TimeToValue string

const (
	TimeToValueNow      TimeToValue = "now"
	TimeToValueMonths   TimeToValue = "months"
	TimeToValueYears    TimeToValue = "years"
	TimeToValueResearch TimeToValue = "research_only"
)

// ValidTimeToValues lists every accepted TimeToValue value.
var ValidTimeToValues = []TimeToValue{
	TimeToValueNow,
	TimeToValueMonths,
	TimeToValueYears,
	TimeToValueResearch,
}

// ReadinessLevel estimates maturity of the work described.
type ReadinessLevel string

const (
	ReadinessIdea       ReadinessLevel = "idea"
	ReadinessPrototype  ReadinessLevel = "prototype"
	ReadinessEvaluated  ReadinessLevel = "evaluated"
	ReadinessProduction ReadinessLevel = "production_ready"
)

// ValidReadinessLevels lists every accepted ReadinessLevel value.
var ValidReadinessLevels = []ReadinessLevel{
	ReadinessIdea,
	ReadinessPrototype,
	ReadinessEvaluated,
	ReadinessProduction,
}

// MappingDirection states whether a paper helps or hurts a use case.
type MappingDirection string

const (
	DirectionEnables    MappingDirection = "enables"
	DirectionImproves   MappingDirection = "improves"
	DirectionChallenges MappingDirection = "challenges"
)

// FitConfidence grades how well a use-case mapping fits.
type FitConfidence string

const (
	FitHigh   FitConfidence = "high"
	FitMedium FitConfidence = "medium"
	FitLow    FitConfidence = "low"
)

// RubricCheck is one of the six interestingness checks. Score is clamped to
// [0, 2]; Evidence is a sentence pointer ("S<n>") or "Not available".
type RubricCheck struct {
	Score    int    `json:"score"`
	Evidence string `json:"evidence"`
}

// InterestingnessRubric is the 6-check, 0-12 point business-relevance rubric.
// Total is always recomputed from the six checks before persisting.
type InterestingnessRubric struct {
	NovelMechanism   RubricCheck `json:"novel_mechanism"`
	SurprisingResult RubricCheck `json:"surprising_result"`
	CostCollapse     RubricCheck `json:"cost_collapse"`
	CapabilityJump   RubricCheck `json:"capability_jump"`
	BroadApplication RubricCheck `json:"broad_application"`
	StrongEvidence   RubricCheck `json:"strong_evidence"`
	Total            int         `json:"total"`
	Tier             string      `json:"tier"`
}

// Checks returns the six rubric checks in canonical order.
func (r *InterestingnessRubric) Checks() []RubricCheck {
	return []RubricCheck{
		r.NovelMechanism,
		r.SurprisingResult,
		r.CostCollapse,
		r.CapabilityJump,
		r.BroadApplication,
		r.StrongEvidence,
	}
}

// ComputeTotal sums the six check scores.
func (r *InterestingnessRubric) ComputeTotal() int {
	total := 0
	for _, c := range r.Checks() {
		total += c.Score
	}
	return total
}

// TierForTotal maps a 0-12 rubric total to a display tier.
func TierForTotal(total int) string {
	switch {
	case total >= 9:
		return "must_read"
	case total >= 6:
		return "notable"
	case total >= 3:
		return "situational"
	default:
		return "background"
	}
}

// KeyClaim is a numeric claim extracted from the abstract, anchored to a
// sentence pointer.
type KeyClaim struct {
	Metric   string `json:"metric"`
	Value    string `json:"value"`
	Evidence string `json:"evidence"`
}

// Constraint is a limitation or failure mode, anchored to a sentence pointer.
type Constraint struct {
	Text     string `json:"text"`
	Evidence string `json:"evidence"`
}

// PublicViews holds the public-facing summaries at three depths plus the
// hook sentence used in feeds.
type PublicViews struct {
	HookSentence string `json:"hook_sentence"`
	TLDR         string `json:"tldr"`
	Paragraph    string `json:"paragraph"`
	DeepDive     string `json:"deep_dive"`
}

// UseCaseMapping links the paper to a taxonomy use case.
type UseCaseMapping struct {
	Name          string           `json:"name"`
	Direction     MappingDirection `json:"direction"`
	FitConfidence FitConfidence    `json:"fit_confidence"`
	Evidence      string           `json:"evidence"`
}

// ProposedCategory is a new taxonomy entry proposed by the model. At most
// one is accepted per analysis; it is always inserted as provisional.
type ProposedCategory struct {
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Synonyms   []string `json:"synonyms"`
}

// PaperCard is the full v1 structured analysis schema.
type PaperCard struct {
	Role                  PaperRole             `json:"role"`
	RoleConfidence        float64               `json:"role_confidence"`
	TimeToValue           TimeToValue           `json:"time_to_value"`
	TimeToValueConfidence float64               `json:"time_to_value_confidence"`
	Interestingness       InterestingnessRubric `json:"interestingness"`
	BusinessPrimitives    []string              `json:"business_primitives"`
	KeyClaims             []KeyClaim            `json:"key_claims"`
	Constraints           []Constraint          `json:"constraints"`
	ReadinessLevel        ReadinessLevel        `json:"readiness_level"`
	PublicViews           PublicViews           `json:"public_views"`
	UseCaseMappings       []UseCaseMapping      `json:"use_case_mappings"`
	ProposedCategory      *ProposedCategory     `json:"proposed_category,omitempty"`
}

// ValidationIssue records one problem found while validating or coercing a
// model response. Severity is "warning" for recoverable issues and "error"
// for hard failures.
type ValidationIssue struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// PaperCardAnalysis is the persisted v1 analysis row. At most one row exists
// per (PaperID, AnalysisVersion).
type PaperCardAnalysis struct {
	ID              uuid.UUID
	PaperID         uuid.UUID
	AnalysisVersion string
	Model           string
	Status          AnalysisStatus
	Card            PaperCard
	Issues          []ValidationIssue
	PromptHash      string
	TokensUsed      int64
	CreatedAt       time.Time
}
