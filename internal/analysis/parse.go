package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Severity values for validation issues.
const (
	severityWarning = "warning"
	severityError   = "error"
)

// looseCard is the loosely-typed first-phase parse target. Every field is
// optional so a structurally broken response still yields whatever the model
// did produce; coercion into the strict domain.PaperCard happens second.
type looseCard struct {
	Role                  *string           `json:"role"`
	RoleConfidence        *float64          `json:"role_confidence"`
	TimeToValue           *string           `json:"time_to_value"`
	TimeToValueConfidence *float64          `json:"time_to_value_confidence"`
	Interestingness       *looseRubric      `json:"interestingness"`
	BusinessPrimitives    []string          `json:"business_primitives"`
	KeyClaims             []looseClaim      `json:"key_claims"`
	Constraints           []looseConstraint `json:"constraints"`
	ReadinessLevel        *string           `json:"readiness_level"`
	PublicViews           *loosePublicViews `json:"public_views"`
	UseCaseMappings       []looseMapping    `json:"use_case_mappings"`
	ProposedCategory      *looseProposed    `json:"proposed_category"`
}

type looseRubric struct {
	NovelMechanism   *looseCheck `json:"novel_mechanism"`
	SurprisingResult *looseCheck `json:"surprising_result"`
	CostCollapse     *looseCheck `json:"cost_collapse"`
	CapabilityJump   *looseCheck `json:"capability_jump"`
	BroadApplication *looseCheck `json:"broad_application"`
	StrongEvidence   *looseCheck `json:"strong_evidence"`
	Total            *float64    `json:"total"`
	Tier             *string     `json:"tier"`
}

type looseCheck struct {
	Score    *float64 `json:"score"`
	Evidence *string  `json:"evidence"`
}

type looseClaim struct {
	Metric   *string `json:"metric"`
	Value    *string `json:"value"`
	Evidence *string `json:"evidence"`
}

type looseConstraint struct {
	Text     *string `json:"text"`
	Evidence *string `json:"evidence"`
}

type loosePublicViews struct {
	HookSentence *string `json:"hook_sentence"`
	TLDR         *string `json:"tldr"`
	Paragraph    *string `json:"paragraph"`
	DeepDive     *string `json:"deep_dive"`
}

type looseMapping struct {
	Name          *string `json:"name"`
	Direction     *string `json:"direction"`
	FitConfidence *string `json:"fit_confidence"`
	Evidence      *string `json:"evidence"`
}

type looseProposed struct {
	Name       *string  `json:"name"`
	Definition *string  `json:"definition"`
	Synonyms   []string `json:"synonyms"`
}

// cardParse accumulates the result of a two-phase parse: the coerced card,
// any recoverable issues (coercions, nested gaps, bad pointers), and the hard
// failures that make the response unusable.
type cardParse struct {
	card   domain.PaperCard
	issues []domain.ValidationIssue
}

// hardFailures returns only the error-severity issues.
func (p *cardParse) hardFailures() []domain.ValidationIssue {
	var out []domain.ValidationIssue
	for _, issue := range p.issues {
		if issue.Severity == severityError {
			out = append(out, issue)
		}
	}
	return out
}

// hasCoercions reports whether any warning-severity issue was recorded. Per
// the status rules, any coercion or nested gap demotes the analysis to
// partial.
func (p *cardParse) hasCoercions() bool {
	for _, issue := range p.issues {
		if issue.Severity == severityWarning {
			return true
		}
	}
	return false
}

func (p *cardParse) warnf(field, format string, args ...any) {
	p.issues = append(p.issues, domain.ValidationIssue{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: severityWarning,
	})
}

func (p *cardParse) failf(field, format string, args ...any) {
	p.issues = append(p.issues, domain.ValidationIssue{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: severityError,
	})
}

// ParseCard parses a model response into a strict PaperCard.
//
// Phase one unmarshals into a loosely-typed intermediate; phase two coerces
// field by field, recording warnings for recoverable problems (clamped
// scores, normalized enums, null arrays, nested gaps) and errors for missing
// required top-level fields. A JSON-level parse failure returns a non-nil
// error; structural problems are reported through the issues instead.
func ParseCard(content string, sentenceCount int) (*cardParse, error) {
	var loose looseCard
	if err := json.Unmarshal([]byte(content), &loose); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	p := &cardParse{}

	p.card.Role = coerceRole(p, loose.Role)
	p.card.RoleConfidence = coerceConfidence(p, "role_confidence", loose.RoleConfidence)
	p.card.TimeToValue = coerceTimeToValue(p, loose.TimeToValue)
	p.card.TimeToValueConfidence = coerceConfidence(p, "time_to_value_confidence", loose.TimeToValueConfidence)
	p.card.Interestingness = coerceRubric(p, loose.Interestingness, sentenceCount)
	p.card.BusinessPrimitives = coerceStringSlice(p, "business_primitives", loose.BusinessPrimitives)
	p.card.KeyClaims = coerceKeyClaims(p, loose.KeyClaims, sentenceCount)
	p.card.Constraints = coerceConstraints(p, loose.Constraints, sentenceCount)
	p.card.ReadinessLevel = coerceReadiness(p, loose.ReadinessLevel)
	p.card.PublicViews = coercePublicViews(p, loose.PublicViews)
	p.card.UseCaseMappings = coerceMappings(p, loose.UseCaseMappings, sentenceCount)
	p.card.ProposedCategory = coerceProposed(loose.ProposedCategory)

	return p, nil
}

func coerceRole(p *cardParse, raw *string) domain.PaperRole {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		p.failf("role", "required field is missing or empty")
		return ""
	}
	normalized := domain.PaperRole(strings.ToLower(strings.TrimSpace(*raw)))
	for _, role := range domain.ValidRoles {
		if normalized == role {
			if string(normalized) != *raw {
				p.warnf("role", "normalized %q to %q", *raw, normalized)
			}
			return role
		}
	}
	p.failf("role", "unknown role %q", *raw)
	return ""
}

func coerceTimeToValue(p *cardParse, raw *string) domain.TimeToValue {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		p.failf("time_to_value", "required field is missing or empty")
		return ""
	}
	normalized := domain.TimeToValue(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*raw), " ", "_")))
	for _, v := range domain.ValidTimeToValues {
		if normalized == v {
			if string(normalized) != *raw {
				p.warnf("time_to_value", "normalized %q to %q", *raw, normalized)
			}
			return v
		}
	}
	p.failf("time_to_value", "unknown time_to_value %q", *raw)
	return ""
}

func coerceReadiness(p *cardParse, raw *string) domain.ReadinessLevel {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		p.failf("readiness_level", "required field is missing or empty")
		return ""
	}
	normalized := domain.ReadinessLevel(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*raw), " ", "_")))
	for _, v := range domain.ValidReadinessLevels {
		if normalized == v {
			if string(normalized) != *raw {
				p.warnf("readiness_level", "normalized %q to %q", *raw, normalized)
			}
			return v
		}
	}
	p.failf("readiness_level", "unknown readiness_level %q", *raw)
	return ""
}

// coerceConfidence clamps a confidence to [0, 1]. A missing confidence is a
// hard failure since both top-level confidences drive status derivation.
func coerceConfidence(p *cardParse, field string, raw *float64) float64 {
	if raw == nil {
		p.failf(field, "required field is missing")
		return 0
	}
	v := *raw
	if v < 0 {
		p.warnf(field, "clamped %v to 0", v)
		return 0
	}
	if v > 1 {
		p.warnf(field, "clamped %v to 1", v)
		return 1
	}
	return v
}

// coerceScore clamps a rubric score to [0, 2] and truncates fractions.
func coerceScore(p *cardParse, field string, raw *float64) int {
	if raw == nil {
		p.warnf(field+".score", "missing score defaulted to 0")
		return 0
	}
	v := int(*raw)
	if float64(v) != *raw {
		p.warnf(field+".score", "truncated %v to %d", *raw, v)
	}
	if v < 0 {
		p.warnf(field+".score", "clamped %d to 0", v)
		return 0
	}
	if v > 2 {
		p.warnf(field+".score", "clamped %d to 2", v)
		return 2
	}
	return v
}

// coerceEvidence validates one evidence pointer. Out-of-range or malformed
// pointers are recorded as warnings and kept as-is, never silently dropped.
func coerceEvidence(p *cardParse, field string, raw *string, sentenceCount int) string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		p.warnf(field+".evidence", "missing evidence pointer defaulted to %q", NotAvailable)
		return NotAvailable
	}
	pointer := strings.TrimSpace(*raw)
	if _, ok := ParseEvidencePointer(pointer, sentenceCount); !ok {
		p.warnf(field+".evidence", "pointer %q does not cite a sentence in range 1..%d", pointer, sentenceCount)
	}
	return pointer
}

func coerceCheck(p *cardParse, field string, raw *looseCheck, sentenceCount int) domain.RubricCheck {
	if raw == nil {
		p.failf("interestingness."+field, "required rubric check is missing")
		return domain.RubricCheck{Evidence: NotAvailable}
	}
	return domain.RubricCheck{
		Score:    coerceScore(p, "interestingness."+field, raw.Score),
		Evidence: coerceEvidence(p, "interestingness."+field, raw.Evidence, sentenceCount),
	}
}

// coerceRubric builds the rubric and always recomputes total and tier from
// the six checks, ignoring whatever the model reported.
func coerceRubric(p *cardParse, raw *looseRubric, sentenceCount int) domain.InterestingnessRubric {
	if raw == nil {
		p.failf("interestingness", "required field is missing")
		return domain.InterestingnessRubric{}
	}

	rubric := domain.InterestingnessRubric{
		NovelMechanism:   coerceCheck(p, "novel_mechanism", raw.NovelMechanism, sentenceCount),
		SurprisingResult: coerceCheck(p, "surprising_result", raw.SurprisingResult, sentenceCount),
		CostCollapse:     coerceCheck(p, "cost_collapse", raw.CostCollapse, sentenceCount),
		CapabilityJump:   coerceCheck(p, "capability_jump", raw.CapabilityJump, sentenceCount),
		BroadApplication: coerceCheck(p, "broad_application", raw.BroadApplication, sentenceCount),
		StrongEvidence:   coerceCheck(p, "strong_evidence", raw.StrongEvidence, sentenceCount),
	}
	rubric.Total = rubric.ComputeTotal()
	rubric.Tier = domain.TierForTotal(rubric.Total)

	if raw.Total != nil && int(*raw.Total) != rubric.Total {
		p.warnf("interestingness.total", "model reported %d, recomputed %d", int(*raw.Total), rubric.Total)
	}
	return rubric
}

func coerceStringSlice(p *cardParse, field string, raw []string) []string {
	if raw == nil {
		p.warnf(field, "null coerced to empty array")
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// maxListItems caps key claims and constraints per the card contract.
const maxListItems = 3

func coerceKeyClaims(p *cardParse, raw []looseClaim, sentenceCount int) []domain.KeyClaim {
	if raw == nil {
		p.warnf("key_claims", "null coerced to empty array")
		return []domain.KeyClaim{}
	}
	if len(raw) > maxListItems {
		p.warnf("key_claims", "truncated %d claims to %d", len(raw), maxListItems)
		raw = raw[:maxListItems]
	}
	out := make([]domain.KeyClaim, 0, len(raw))
	for i, claim := range raw {
		field := fmt.Sprintf("key_claims[%d]", i)
		if claim.Metric == nil || claim.Value == nil {
			p.warnf(field, "dropped claim missing metric or value")
			continue
		}
		out = append(out, domain.KeyClaim{
			Metric:   strings.TrimSpace(*claim.Metric),
			Value:    strings.TrimSpace(*claim.Value),
			Evidence: coerceEvidence(p, field, claim.Evidence, sentenceCount),
		})
	}
	return out
}

func coerceConstraints(p *cardParse, raw []looseConstraint, sentenceCount int) []domain.Constraint {
	if raw == nil {
		p.warnf("constraints", "null coerced to empty array")
		return []domain.Constraint{}
	}
	if len(raw) > maxListItems {
		p.warnf("constraints", "truncated %d constraints to %d", len(raw), maxListItems)
		raw = raw[:maxListItems]
	}
	out := make([]domain.Constraint, 0, len(raw))
	for i, c := range raw {
		field := fmt.Sprintf("constraints[%d]", i)
		if c.Text == nil || strings.TrimSpace(*c.Text) == "" {
			p.warnf(field, "dropped constraint with empty text")
			continue
		}
		out = append(out, domain.Constraint{
			Text:     strings.TrimSpace(*c.Text),
			Evidence: coerceEvidence(p, field, c.Evidence, sentenceCount),
		})
	}
	return out
}

// coercePublicViews requires the top-level object; individual missing views
// are nested gaps recorded as warnings, which demote the status to partial.
func coercePublicViews(p *cardParse, raw *loosePublicViews) domain.PublicViews {
	if raw == nil {
		p.failf("public_views", "required field is missing")
		return domain.PublicViews{}
	}
	views := domain.PublicViews{
		HookSentence: derefTrim(raw.HookSentence),
		TLDR:         derefTrim(raw.TLDR),
		Paragraph:    derefTrim(raw.Paragraph),
		DeepDive:     derefTrim(raw.DeepDive),
	}
	if views.HookSentence == "" {
		p.warnf("public_views.hook_sentence", "missing or empty")
	}
	if views.TLDR == "" {
		p.warnf("public_views.tldr", "missing or empty")
	}
	if views.Paragraph == "" {
		p.warnf("public_views.paragraph", "missing or empty")
	}
	if views.DeepDive == "" {
		p.warnf("public_views.deep_dive", "missing or empty")
	}
	return views
}

func coerceMappings(p *cardParse, raw []looseMapping, sentenceCount int) []domain.UseCaseMapping {
	if raw == nil {
		p.warnf("use_case_mappings", "null coerced to empty array")
		return []domain.UseCaseMapping{}
	}
	out := make([]domain.UseCaseMapping, 0, len(raw))
	for i, m := range raw {
		field := fmt.Sprintf("use_case_mappings[%d]", i)
		if m.Name == nil || strings.TrimSpace(*m.Name) == "" {
			p.warnf(field, "dropped mapping with empty name")
			continue
		}
		out = append(out, domain.UseCaseMapping{
			Name:          strings.TrimSpace(*m.Name),
			Direction:     coerceDirection(p, field, m.Direction),
			FitConfidence: coerceFitConfidence(p, field, m.FitConfidence),
			Evidence:      coerceEvidence(p, field, m.Evidence, sentenceCount),
		})
	}
	return out
}

// coerceDirection normalizes free-text direction values to the enum.
func coerceDirection(p *cardParse, field string, raw *string) domain.MappingDirection {
	if raw == nil {
		p.warnf(field+".direction", "missing direction defaulted to %q", domain.DirectionEnables)
		return domain.DirectionEnables
	}
	normalized := strings.ToLower(strings.TrimSpace(*raw))
	switch {
	case strings.HasPrefix(normalized, "enable"):
		return domain.DirectionEnables
	case strings.HasPrefix(normalized, "improve"):
		return domain.DirectionImproves
	case strings.HasPrefix(normalized, "challenge"), strings.HasPrefix(normalized, "threat"):
		if normalized != string(domain.DirectionChallenges) {
			p.warnf(field+".direction", "normalized %q to %q", *raw, domain.DirectionChallenges)
		}
		return domain.DirectionChallenges
	default:
		p.warnf(field+".direction", "unknown direction %q defaulted to %q", *raw, domain.DirectionEnables)
		return domain.DirectionEnables
	}
}

// coerceFitConfidence normalizes free-text fit-confidence values to the enum.
func coerceFitConfidence(p *cardParse, field string, raw *string) domain.FitConfidence {
	if raw == nil {
		p.warnf(field+".fit_confidence", "missing fit_confidence defaulted to %q", domain.FitLow)
		return domain.FitLow
	}
	normalized := strings.ToLower(strings.TrimSpace(*raw))
	switch {
	case strings.HasPrefix(normalized, "high"):
		return domain.FitHigh
	case strings.HasPrefix(normalized, "med"):
		if normalized != string(domain.FitMedium) {
			p.warnf(field+".fit_confidence", "normalized %q to %q", *raw, domain.FitMedium)
		}
		return domain.FitMedium
	case strings.HasPrefix(normalized, "low"):
		return domain.FitLow
	default:
		p.warnf(field+".fit_confidence", "unknown fit_confidence %q defaulted to %q", *raw, domain.FitLow)
		return domain.FitLow
	}
}

func coerceProposed(raw *looseProposed) *domain.ProposedCategory {
	if raw == nil || raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return nil
	}
	proposed := &domain.ProposedCategory{
		Name:     strings.TrimSpace(*raw.Name),
		Synonyms: raw.Synonyms,
	}
	if raw.Definition != nil {
		proposed.Definition = strings.TrimSpace(*raw.Definition)
	}
	if proposed.Synonyms == nil {
		proposed.Synonyms = []string{}
	}
	return proposed
}

func derefTrim(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
