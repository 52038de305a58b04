package analysisv3

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paperpulse/analysis-service/internal/domain"
)

const (
	severityWarning = "warning"
	severityError   = "error"
)

// Safe defaults used when degrading to a partial record. They deliberately
// understate the paper rather than overstate it.
const (
	defaultKind        = domain.V3KindAnalysis
	defaultTimeToValue = domain.TimeToValueResearch
	defaultReadiness   = domain.ReadinessIdea
)

// looseV3 is the loosely-typed first-phase parse target.
type looseV3 struct {
	HookSentence   *string      `json:"hook_sentence"`
	Kind           *string      `json:"kind"`
	TimeToValue    *string      `json:"time_to_value"`
	ImpactTags     []string     `json:"impact_tags"`
	PracticalValue *looseScores `json:"practical_value"`
	KeyNumbers     []string     `json:"key_numbers"`
	ReadinessLevel *string      `json:"readiness_level"`
	WhatChanges    []string     `json:"what_changes"`
}

type looseScores struct {
	RealProblem    *float64 `json:"real_problem"`
	ConcreteResult *float64 `json:"concrete_result"`
	ActuallyUsable *float64 `json:"actually_usable"`
	Total          *float64 `json:"total"`
}

// Outcome is the explicit variant result of a v3 parse: either a complete
// card or a degraded partial one carrying the issues that forced the
// downgrade. Callers must check Partial rather than trusting defaults.
type Outcome struct {
	card    domain.V3Card
	issues  []domain.ValidationIssue
	partial bool
}

// CompleteOutcome wraps a card that passed strict validation.
func CompleteOutcome(card domain.V3Card) Outcome {
	return Outcome{card: card}
}

// PartialOutcome wraps a best-effort card built from defensive coercion.
func PartialOutcome(card domain.V3Card, issues []domain.ValidationIssue) Outcome {
	return Outcome{card: card, issues: issues, partial: true}
}

// Card returns the analysis card.
func (o Outcome) Card() domain.V3Card { return o.card }

// Partial reports whether the card was degraded, and why.
func (o Outcome) Partial() ([]domain.ValidationIssue, bool) { return o.issues, o.partial }

// Status maps the outcome onto the stored analysis status.
func (o Outcome) Status() domain.AnalysisStatus {
	if o.partial {
		return domain.AnalysisStatusPartial
	}
	return domain.AnalysisStatusComplete
}

// ParseStrict parses a model response and validates it against the full v3
// contract. It returns the validation failures instead of a card when any
// required field is missing or invalid; the practical-value total is always
// recomputed from its parts, silently correcting model arithmetic.
func ParseStrict(content string) (domain.V3Card, []domain.ValidationIssue, error) {
	var loose looseV3
	if err := json.Unmarshal([]byte(content), &loose); err != nil {
		return domain.V3Card{}, nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	var failures []domain.ValidationIssue
	fail := func(field, msg string) {
		failures = append(failures, domain.ValidationIssue{Field: field, Message: msg, Severity: severityError})
	}

	card := domain.V3Card{}

	if loose.HookSentence == nil || strings.TrimSpace(*loose.HookSentence) == "" {
		fail("hook_sentence", "required field is missing or empty")
	} else {
		card.HookSentence = strings.TrimSpace(*loose.HookSentence)
	}

	if kind, ok := parseKind(loose.Kind); ok {
		card.Kind = kind
	} else {
		fail("kind", "missing or unknown kind")
	}

	if ttv, ok := parseTimeToValue(loose.TimeToValue); ok {
		card.TimeToValue = ttv
	} else {
		fail("time_to_value", "missing or unknown time_to_value")
	}

	card.ImpactTags = cleanStrings(loose.ImpactTags)
	if len(card.ImpactTags) < 1 || len(card.ImpactTags) > 3 {
		fail("impact_tags", fmt.Sprintf("expected 1 to 3 tags, got %d", len(card.ImpactTags)))
	}

	if loose.PracticalValue == nil {
		fail("practical_value", "required field is missing")
	} else {
		score, ok := parseScores(loose.PracticalValue)
		if !ok {
			fail("practical_value", "sub-scores missing or out of range 0..2")
		}
		card.PracticalValue = score
	}

	card.KeyNumbers = cleanStrings(loose.KeyNumbers)
	if len(card.KeyNumbers) > 3 {
		card.KeyNumbers = card.KeyNumbers[:3]
	}

	if rl, ok := parseReadiness(loose.ReadinessLevel); ok {
		card.ReadinessLevel = rl
	} else {
		fail("readiness_level", "missing or unknown readiness_level")
	}

	card.WhatChanges = cleanStrings(loose.WhatChanges)
	if len(card.WhatChanges) < 2 || len(card.WhatChanges) > 3 {
		fail("what_changes", fmt.Sprintf("expected 2 or 3 statements, got %d", len(card.WhatChanges)))
	}

	if len(failures) > 0 {
		return domain.V3Card{}, failures, nil
	}
	return card, nil, nil
}

// BuildPartial constructs a best-effort card from whatever the model did
// produce, substituting safe defaults for anything missing or invalid. It
// never fails: even an unparseable response yields a minimal card derived
// from the paper itself. The returned issues record every substitution.
func BuildPartial(content string, paper *domain.Paper, parseFailures []domain.ValidationIssue) Outcome {
	issues := append([]domain.ValidationIssue{}, parseFailures...)
	warn := func(field, msg string) {
		issues = append(issues, domain.ValidationIssue{Field: field, Message: msg, Severity: severityWarning})
	}

	var loose looseV3
	if err := json.Unmarshal([]byte(content), &loose); err != nil {
		warn("response", "unparseable response, all fields defaulted")
	}

	card := domain.V3Card{
		Kind:           defaultKind,
		TimeToValue:    defaultTimeToValue,
		ReadinessLevel: defaultReadiness,
		ImpactTags:     []string{},
		KeyNumbers:     []string{},
		WhatChanges:    []string{},
	}

	if loose.HookSentence != nil && strings.TrimSpace(*loose.HookSentence) != "" {
		card.HookSentence = strings.TrimSpace(*loose.HookSentence)
	} else {
		card.HookSentence = paper.Title
		warn("hook_sentence", "defaulted to paper title")
	}

	if kind, ok := parseKind(loose.Kind); ok {
		card.Kind = kind
	} else {
		warn("kind", fmt.Sprintf("defaulted to %q", defaultKind))
	}

	if ttv, ok := parseTimeToValue(loose.TimeToValue); ok {
		card.TimeToValue = ttv
	} else {
		warn("time_to_value", fmt.Sprintf("defaulted to %q", defaultTimeToValue))
	}

	if tags := cleanStrings(loose.ImpactTags); len(tags) > 0 {
		if len(tags) > 3 {
			tags = tags[:3]
		}
		card.ImpactTags = tags
	} else {
		warn("impact_tags", "defaulted to empty")
	}

	if loose.PracticalValue != nil {
		card.PracticalValue = clampScores(loose.PracticalValue)
	} else {
		warn("practical_value", "defaulted to zero")
	}
	card.PracticalValue.Total = card.PracticalValue.ComputeTotal()

	if nums := cleanStrings(loose.KeyNumbers); len(nums) > 0 {
		if len(nums) > 3 {
			nums = nums[:3]
		}
		card.KeyNumbers = nums
	}

	if rl, ok := parseReadiness(loose.ReadinessLevel); ok {
		card.ReadinessLevel = rl
	} else {
		warn("readiness_level", fmt.Sprintf("defaulted to %q", defaultReadiness))
	}

	if changes := cleanStrings(loose.WhatChanges); len(changes) > 0 {
		if len(changes) > 3 {
			changes = changes[:3]
		}
		card.WhatChanges = changes
	} else {
		warn("what_changes", "defaulted to empty")
	}

	return PartialOutcome(card, issues)
}

func parseKind(raw *string) (domain.V3Kind, bool) {
	if raw == nil {
		return "", false
	}
	normalized := domain.V3Kind(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*raw), " ", "_")))
	for _, k := range domain.ValidV3Kinds {
		if normalized == k {
			return k, true
		}
	}
	return "", false
}

func parseTimeToValue(raw *string) (domain.TimeToValue, bool) {
	if raw == nil {
		return "", false
	}
	normalized := domain.TimeToValue(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*raw), " ", "_")))
	for _, v := range domain.ValidTimeToValues {
		if normalized == v {
			return v, true
		}
	}
	return "", false
}

func parseReadiness(raw *string) (domain.ReadinessLevel, bool) {
	if raw == nil {
		return "", false
	}
	normalized := domain.ReadinessLevel(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*raw), " ", "_")))
	for _, v := range domain.ValidReadinessLevels {
		if normalized == v {
			return v, true
		}
	}
	return "", false
}

// parseScores validates each part is an integer in [0, 2]. The total is
// always recomputed regardless of what the model reported.
func parseScores(raw *looseScores) (domain.PracticalValueScore, bool) {
	score := clampScores(raw)
	ok := inRange(raw.RealProblem) && inRange(raw.ConcreteResult) && inRange(raw.ActuallyUsable)
	return score, ok
}

// clampScores coerces each part into [0, 2] and recomputes the total.
func clampScores(raw *looseScores) domain.PracticalValueScore {
	score := domain.PracticalValueScore{
		RealProblem:    clampPart(raw.RealProblem),
		ConcreteResult: clampPart(raw.ConcreteResult),
		ActuallyUsable: clampPart(raw.ActuallyUsable),
	}
	score.Total = score.ComputeTotal()
	return score
}

func clampPart(raw *float64) int {
	if raw == nil {
		return 0
	}
	v := int(*raw)
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

func inRange(raw *float64) bool {
	return raw != nil && *raw >= 0 && *raw <= 2 && *raw == float64(int(*raw))
}

func cleanStrings(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
