package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// NotAvailable is the literal evidence pointer a model uses when no abstract
// sentence supports a claim.
const NotAvailable = "Not available"

// sentencePattern matches a run of text ending in sentence punctuation, or a
// trailing fragment without one.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// evidencePointerPattern matches a sentence pointer like "S3".
var evidencePointerPattern = regexp.MustCompile(`^S([1-9][0-9]*)$`)

// SplitSentences splits an abstract into trimmed sentences. Sentence N is
// cited by the model as "S<N>" (1-based).
func SplitSentences(abstract string) []string {
	raw := sentencePattern.FindAllString(abstract, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// ParseEvidencePointer validates an evidence pointer against the abstract's
// sentence count. It returns the 1-based sentence index (0 for
// "Not available") and whether the pointer is well-formed and in range.
func ParseEvidencePointer(pointer string, sentenceCount int) (int, bool) {
	if pointer == NotAvailable {
		return 0, true
	}
	m := evidencePointerPattern.FindStringSubmatch(pointer)
	if m == nil {
		return 0, false
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	if n < 1 || n > sentenceCount {
		return n, false
	}
	return n, true
}

// cardSystemPrompt instructs the model on the paper-card schema. Evidence
// pointers must cite a numbered sentence or the literal "Not available".
const cardSystemPrompt = `You are an analyst who translates AI research papers into structured business-relevance cards for a non-academic audience.

You MUST respond with a single valid JSON object and nothing else, in exactly this shape:
{
  "role": "capability|efficiency|understanding|infrastructure|safety",
  "role_confidence": 0.0,
  "time_to_value": "now|months|years|research_only",
  "time_to_value_confidence": 0.0,
  "interestingness": {
    "novel_mechanism": {"score": 0, "evidence": "S1"},
    "surprising_result": {"score": 0, "evidence": "Not available"},
    "cost_collapse": {"score": 0, "evidence": "S2"},
    "capability_jump": {"score": 0, "evidence": "Not available"},
    "broad_application": {"score": 0, "evidence": "S3"},
    "strong_evidence": {"score": 0, "evidence": "Not available"},
    "total": 0,
    "tier": ""
  },
  "business_primitives": ["tag"],
  "key_claims": [{"metric": "", "value": "", "evidence": "S1"}],
  "constraints": [{"text": "", "evidence": "S2"}],
  "readiness_level": "idea|prototype|evaluated|production_ready",
  "public_views": {"hook_sentence": "", "tldr": "", "paragraph": "", "deep_dive": ""},
  "use_case_mappings": [{"name": "", "direction": "enables|improves|challenges", "fit_confidence": "high|medium|low", "evidence": "S1"}],
  "proposed_category": null
}

Rules:
1. Every rubric score is an integer from 0 to 2. Confidences are between 0 and 1.
2. Every "evidence" field cites a numbered abstract sentence as "S<n>" or the literal string "Not available". Never invent sentence numbers.
3. At most 3 key_claims and at most 3 constraints.
4. use_case_mappings names must come from the provided taxonomy. If a genuinely new category is needed, propose at most ONE via proposed_category with a name, definition and synonyms; otherwise set proposed_category to null.
5. public_views must all be non-empty: a one-line hook_sentence, a 2-3 sentence tldr, a one-paragraph explanation, and a deep_dive of several paragraphs.`

// BuildCardPrompt builds the system and user prompts for a v1 analysis. The
// abstract is numbered sentence by sentence so evidence pointers are
// verifiable; the numbered sentence count is returned for pointer checks.
func BuildCardPrompt(paper *domain.Paper, taxonomyNames []string) (systemPrompt, userPrompt string, sentenceCount int) {
	sentences := SplitSentences(paper.Abstract)

	var sb strings.Builder
	sb.WriteString("Analyze this paper.\n\n")
	sb.WriteString("Title: ")
	sb.WriteString(paper.Title)
	sb.WriteString("\n")
	if len(paper.Categories) > 0 {
		sb.WriteString("Categories: ")
		sb.WriteString(strings.Join(paper.Categories, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\nAbstract (numbered sentences):\n")
	for i, s := range sentences {
		fmt.Fprintf(&sb, "[S%d] %s\n", i+1, s)
	}

	if len(taxonomyNames) > 0 {
		sb.WriteString("\nUse-case taxonomy (use exact names):\n")
		for _, name := range taxonomyNames {
			sb.WriteString("- ")
			sb.WriteString(name)
			sb.WriteString("\n")
		}
	}

	return cardSystemPrompt, sb.String(), len(sentences)
}

// BuildRetryPrompt appends explicit validation feedback to a failed prompt so
// the one-shot retry can correct the specific problems.
func BuildRetryPrompt(userPrompt string, issues []domain.ValidationIssue) string {
	var sb strings.Builder
	sb.WriteString(userPrompt)
	sb.WriteString("\n\nYour previous response was invalid. Fix these problems and respond with the corrected JSON object only:\n")
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s: %s\n", issue.Field, issue.Message)
	}
	return sb.String()
}

// PromptHash returns the SHA-256 hex digest of the combined system and user
// prompts, stored with each analysis for auditability.
func PromptHash(systemPrompt, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "\n" + userPrompt))
	return hex.EncodeToString(sum[:])
}
