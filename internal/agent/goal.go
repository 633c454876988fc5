package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// GoalBoundary keeps the agent from drifting outside the declared goal.
type GoalBoundary struct {
	Scope                string   `json:"scope,omitempty"`
	Exclusions           []string `json:"exclusions,omitempty"`
	CompletionConditions []string `json:"completion_conditions,omitempty"`
}

// Empty reports whether nothing was extracted.
func (g *GoalBoundary) Empty() bool {
	return g == nil || (g.Scope == "" && len(g.Exclusions) == 0 && len(g.CompletionConditions) == 0)
}

// Prompt renders the boundary for system-context injection.
func (g *GoalBoundary) Prompt() string {
	if g.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Goal boundary:\n")
	if g.Scope != "" {
		b.WriteString("- scope: " + g.Scope + "\n")
	}
	for _, e := range g.Exclusions {
		b.WriteString("- do not: " + e + "\n")
	}
	for _, c := range g.CompletionConditions {
		b.WriteString("- done when: " + c + "\n")
	}
	return b.String()
}

var (
	scopePattern     = regexp.MustCompile(`(?i)(?:^|\.\s+)(?:only|just|limit(?:ed)? to)\s+([^.;\n]+)`)
	exclusionPattern = regexp.MustCompile(`(?i)(?:do not|don't|without|avoid|except)\s+([^.;\n]+)`)
	doneWhenPattern  = regexp.MustCompile(`(?i)(?:until|done when|finish(?:ed)? when|stop when)\s+([^.;\n]+)`)
)

// ExtractGoalRegex is the first pass of the hybrid extractor: cheap
// pattern matching over the user message.
func ExtractGoalRegex(message string) *GoalBoundary {
	g := &GoalBoundary{}
	if m := scopePattern.FindStringSubmatch(message); len(m) > 1 {
		g.Scope = strings.TrimSpace(m[1])
	}
	for _, m := range exclusionPattern.FindAllStringSubmatch(message, 3) {
		g.Exclusions = append(g.Exclusions, strings.TrimSpace(m[1]))
	}
	for _, m := range doneWhenPattern.FindAllStringSubmatch(message, 3) {
		g.CompletionConditions = append(g.CompletionConditions, strings.TrimSpace(m[1]))
	}
	return g
}

const goalExtractionSystem = `Extract the goal boundary from the user request.
Respond with strict JSON only:
{"scope": "...", "exclusions": ["..."], "completion_conditions": ["..."]}.
Use empty values for anything not stated. Never invent constraints.`

// ExtractGoal runs the hybrid regex-then-LLM extraction. The LLM pass
// runs only when the regex pass found nothing and llmEnabled is set.
func ExtractGoal(ctx context.Context, extractor TaskExtractor, message string, llmEnabled bool) *GoalBoundary {
	g := ExtractGoalRegex(message)
	if !g.Empty() || !llmEnabled || extractor == nil {
		return g
	}
	text, err := extractor.CompleteText(ctx, goalExtractionSystem, message)
	if err != nil {
		return g
	}
	var extracted GoalBoundary
	if err := json.Unmarshal([]byte(extractJSONBlock(text)), &extracted); err != nil {
		return g
	}
	return &extracted
}
