package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/skilllite/pkg/models"
)

// TaskExtractor asks the model to turn a user message into a task list,
// optionally constrained to a tool hint and templated examples. nil
// disables LLM refinement and the planner returns rule-only plans.
type TaskExtractor interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// Planner is the stateless rule-matched task-list generator run on the
// first iteration of each turn.
type Planner struct {
	rules     *RuleStore
	extractor TaskExtractor
	examples  *ExampleStore
	logger    *slog.Logger
}

// NewPlanner builds a planner. extractor and examples may be nil.
func NewPlanner(rules *RuleStore, examples *ExampleStore, extractor TaskExtractor) *Planner {
	return &Planner{
		rules:     rules,
		examples:  examples,
		extractor: extractor,
		logger:    slog.Default().With("component", "planner"),
	}
}

const planExtractionSystem = `Turn the user request into a short ordered task list.
Respond with strict JSON only: {"tasks": [{"id": 1, "description": "...", "tool_hint": "..."}]}.
Use at most 6 tasks. tool_hint is optional. Return {"tasks": []} when the request needs no plan.`

// Plan produces a task plan for the user message. The highest-priority
// matching rule supplies the tool hint and instruction for the extraction
// prompt; with no extractor the matched rules become one task each.
func (p *Planner) Plan(ctx context.Context, message string) (*models.TaskPlan, *PlanningRule, error) {
	rules, err := p.rules.Load()
	if err != nil {
		return nil, nil, err
	}
	matched := MatchRules(rules, message)
	var top *PlanningRule
	if len(matched) > 0 {
		top = &matched[0]
	}

	if p.extractor == nil {
		return p.ruleOnlyPlan(matched), top, nil
	}

	var b strings.Builder
	b.WriteString("Request: " + message + "\n")
	if top != nil {
		fmt.Fprintf(&b, "Guidance: %s\n", top.Instruction)
		if top.ToolHint != "" {
			fmt.Fprintf(&b, "Preferred tool: %s\n", top.ToolHint)
		}
	}
	if p.examples != nil {
		if text := p.examples.MatchedSection(message, 3); text != "" {
			b.WriteString("Examples of similar plans:\n" + text)
		}
	}

	text, err := p.extractor.CompleteText(ctx, planExtractionSystem, b.String())
	if err != nil {
		p.logger.Debug("plan extraction failed, using rule-only plan", "error", err)
		return p.ruleOnlyPlan(matched), top, nil
	}

	var payload struct {
		Tasks []struct {
			ID          uint32 `json:"id"`
			Description string `json:"description"`
			ToolHint    string `json:"tool_hint"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(extractJSONBlock(text)), &payload); err != nil {
		p.logger.Debug("plan extraction returned malformed JSON", "error", err)
		return p.ruleOnlyPlan(matched), top, nil
	}

	plan := &models.TaskPlan{}
	for i, t := range payload.Tasks {
		id := t.ID
		if id == 0 {
			id = uint32(i + 1)
		}
		hint := t.ToolHint
		if hint == "" && top != nil {
			hint = top.ToolHint
		}
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		plan.Tasks = append(plan.Tasks, models.Task{ID: id, Description: t.Description, ToolHint: hint})
	}
	if plan.Empty() {
		return p.ruleOnlyPlan(matched), top, nil
	}
	if err := plan.Validate(); err != nil {
		p.logger.Debug("extracted plan invalid", "error", err)
		return p.ruleOnlyPlan(matched), top, nil
	}
	return plan, top, nil
}

// ruleOnlyPlan turns matched rules into one task each, capped at three.
func (p *Planner) ruleOnlyPlan(matched []PlanningRule) *models.TaskPlan {
	plan := &models.TaskPlan{}
	for i, r := range matched {
		if i >= 3 {
			break
		}
		plan.Tasks = append(plan.Tasks, models.Task{
			ID:          uint32(i + 1),
			Description: r.Instruction,
			ToolHint:    r.ToolHint,
		})
	}
	return plan
}

// extractJSONBlock strips code fences and leading prose around a JSON
// object.
func extractJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if start := strings.IndexAny(text, "{["); start > 0 {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}
