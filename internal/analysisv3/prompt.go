package analysisv3

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// v3SystemPrompt instructs the model on the simplified 10-field schema.
const v3SystemPrompt = `You assess AI research papers for practical, near-term value.

You MUST respond with a single valid JSON object and nothing else, in exactly this shape:
{
  "hook_sentence": "",
  "kind": "new_method|improvement|benchmark|analysis|tooling",
  "time_to_value": "now|months|years|research_only",
  "impact_tags": ["tag"],
  "practical_value": {"real_problem": 0, "concrete_result": 0, "actually_usable": 0, "total": 0},
  "key_numbers": ["metric: value"],
  "readiness_level": "idea|prototype|evaluated|production_ready",
  "what_changes": ["statement"]
}

Rules:
1. Each practical_value part is an integer from 0 to 2; total is their sum.
2. impact_tags has 1 to 3 short tags.
3. key_numbers lists up to 3 concrete numbers from the paper.
4. what_changes has 2 or 3 statements about what this changes in practice.
5. hook_sentence is one plain sentence a busy reader would stop for.`

// BuildPrompt builds the system and user prompts for a v3 analysis.
func BuildPrompt(paper *domain.Paper) (systemPrompt, userPrompt string) {
	var sb strings.Builder
	sb.WriteString("Assess this paper.\n\n")
	sb.WriteString("Title: ")
	sb.WriteString(paper.Title)
	sb.WriteString("\n")
	if len(paper.Categories) > 0 {
		sb.WriteString("Categories: ")
		sb.WriteString(strings.Join(paper.Categories, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\nAbstract:\n")
	sb.WriteString(paper.Abstract)
	sb.WriteString("\n")
	return v3SystemPrompt, sb.String()
}

// BuildRetryPrompt appends validation feedback for the one-shot retry.
func BuildRetryPrompt(userPrompt string, issues []domain.ValidationIssue) string {
	var sb strings.Builder
	sb.WriteString(userPrompt)
	sb.WriteString("\nYour previous response was invalid. Fix these problems and respond with the corrected JSON object only:\n")
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s: %s\n", issue.Field, issue.Message)
	}
	return sb.String()
}

// PromptHash returns the SHA-256 hex digest of the combined prompts.
func PromptHash(systemPrompt, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "\n" + userPrompt))
	return hex.EncodeToString(sum[:])
}
