package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/skilllite/internal/agent"
)

// LLM is the completion surface the engine uses for synthesis prompts.
type LLM interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// Engine runs evolution cycles: consume unprocessed decisions, synthesize
// rules and examples under the gatekeepers, update effectiveness, and log
// everything to evolution_log. One cycle is transactional: either all
// approved changes land or none do.
type Engine struct {
	store    *Store
	llm      LLM
	gate     *Gatekeeper
	rules    *agent.RuleStore
	examples *agent.ExampleStore
	chatHome string
	logger   *slog.Logger
}

// NewEngine builds an engine over the chat home.
func NewEngine(store *Store, llm LLM, chatHome string, rules *agent.RuleStore, examples *agent.ExampleStore) *Engine {
	return &Engine{
		store:    store,
		llm:      llm,
		gate:     NewGatekeeper(chatHome),
		rules:    rules,
		examples: examples,
		chatHome: chatHome,
		logger:   slog.Default().With("component", "evolution"),
	}
}

const ruleExtractionSystem = `You mine agent execution logs for reusable planning rules.
Respond with strict JSON only:
{"rules": [{"id": "...", "instruction": "...", "priority": 65, "keywords": ["..."], "context_keywords": ["..."], "tool_hint": "..."}]}.
Priorities must be between 50 and 79. Propose at most 5 rules; propose none when the logs show nothing generalizable.`

const exampleGenerationSystem = `You distill one successful agent run into a reusable plan template.
Respond with strict JSON only:
{"id": "...", "task_pattern": "...", "plan_template": "...", "key_insight": "..."}.`

// RunCycle executes one full evolution cycle.
func (e *Engine) RunCycle(ctx context.Context) error {
	decisions, err := e.store.UnprocessedDecisions(ctx, 100)
	if err != nil {
		return fmt.Errorf("load decisions: %w", err)
	}
	if len(decisions) == 0 {
		return nil
	}
	e.logger.Info("evolution cycle starting", "decisions", len(decisions))

	existingRules, err := e.rules.Load()
	if err != nil {
		return err
	}
	existingExamples, err := e.examples.Load()
	if err != nil {
		return err
	}

	newRules := e.extractRules(ctx, decisions, existingRules)
	newExamples := e.generateExamples(ctx, decisions, existingExamples)
	newSkills := e.synthesizeSkill(ctx, decisions)

	if err := e.gate.CheckSizes(len(newRules), len(newExamples), newSkills); err != nil {
		_ = e.store.LogEvent(ctx, "gatekeeper_rejected", err.Error())
		return err
	}

	// Effectiveness ladder over the merged rule set.
	merged := e.applyEffectiveness(ctx, append(append([]agent.PlanningRule(nil), existingRules...), newRules...))
	if len(merged) > MaxTotalRules {
		merged = merged[:MaxTotalRules]
	}
	mergedExamples := append(existingExamples, newExamples...)
	if len(mergedExamples) > agent.MaxExamples {
		mergedExamples = mergedExamples[:agent.MaxExamples]
	}

	// Transactional apply: write both files, then mark decisions. When a
	// later step fails, the files already written are rewritten with their
	// pre-cycle contents before the error is returned; a failure of that
	// restore write is not reported.
	if err := e.writeRules(merged); err != nil {
		return err
	}
	if err := e.writeExamples(mergedExamples); err != nil {
		_ = e.writeRules(existingRules)
		return err
	}

	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		ids = append(ids, d.ID)
	}
	if err := e.store.MarkEvolved(ctx, ids); err != nil {
		_ = e.writeRules(existingRules)
		_ = e.writeExamples(existingExamples)
		return fmt.Errorf("mark decisions evolved: %w", err)
	}

	detail, _ := json.Marshal(map[string]any{
		"decisions": len(decisions), "new_rules": len(newRules),
		"new_examples": len(newExamples), "new_skills": newSkills,
	})
	_ = e.store.LogEvent(ctx, "cycle_complete", string(detail))
	e.logger.Info("evolution cycle complete", "new_rules", len(newRules), "new_examples", len(newExamples))
	return nil
}

// extractRules prompts the model with decision summaries and keeps the
// candidates that survive validation and the content gatekeeper.
// Parse failures are logged as rule_parse_failed and never poison the
// decisions queue.
func (e *Engine) extractRules(ctx context.Context, decisions []DecisionRecord, existing []agent.PlanningRule) []agent.PlanningRule {
	if e.llm == nil {
		return nil
	}
	existingIDs := make(map[string]bool, len(existing))
	var idList []string
	for _, r := range existing {
		existingIDs[r.ID] = true
		idList = append(idList, r.ID)
	}

	var b strings.Builder
	b.WriteString("Existing rule ids: " + strings.Join(idList, ", ") + "\n\nDecisions:\n")
	for _, d := range decisions {
		status := "failed"
		if d.TaskCompleted {
			status = "succeeded"
		}
		fmt.Fprintf(&b, "- [%s] %q tools=%d failed=%d replans=%d feedback=%s\n",
			status, d.TaskDescription, d.TotalTools, d.FailedTools, d.Replans, d.Feedback)
	}

	text, err := e.llm.CompleteText(ctx, ruleExtractionSystem, b.String())
	if err != nil {
		_ = e.store.LogEvent(ctx, "rule_extraction_failed", err.Error())
		return nil
	}
	var payload struct {
		Rules []struct {
			ID              string   `json:"id"`
			Instruction     string   `json:"instruction"`
			Priority        int      `json:"priority"`
			Keywords        []string `json:"keywords"`
			ContextKeywords []string `json:"context_keywords"`
			ToolHint        string   `json:"tool_hint"`
		} `json:"rules"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		_ = e.store.LogEvent(ctx, "rule_parse_failed", err.Error())
		return nil
	}

	var out []agent.PlanningRule
	for _, r := range payload.Rules {
		if r.ID == "" || r.Instruction == "" || len(r.Keywords) == 0 {
			continue
		}
		if existingIDs[r.ID] {
			continue
		}
		if err := e.gate.CheckContent(r.Instruction); err != nil {
			_ = e.store.LogEvent(ctx, "rule_rejected", r.ID+": "+err.Error())
			continue
		}
		priority := r.Priority
		if priority < 50 {
			priority = 50
		}
		if priority > 79 {
			priority = 79
		}
		out = append(out, agent.PlanningRule{
			ID:              r.ID,
			Priority:        priority,
			Keywords:        r.Keywords,
			ContextKeywords: r.ContextKeywords,
			ToolHint:        r.ToolHint,
			Instruction:     r.Instruction,
			Mutable:         true,
			Origin:          agent.OriginEvolved,
		})
		existingIDs[r.ID] = true
		if len(out) >= MaxNewRulesPerRun {
			break
		}
	}
	return out
}

// generateExamples selects one clean success (zero replans, zero failed
// tools, at least three tool calls) and asks the model for a template.
func (e *Engine) generateExamples(ctx context.Context, decisions []DecisionRecord, existing []agent.PlanningExample) []agent.PlanningExample {
	if e.llm == nil || len(existing) >= agent.MaxExamples {
		return nil
	}
	var clean *DecisionRecord
	for i := range decisions {
		d := &decisions[i]
		if d.TaskCompleted && d.Replans == 0 && d.FailedTools == 0 && d.TotalTools >= 3 {
			clean = d
			break
		}
	}
	if clean == nil {
		return nil
	}

	user := fmt.Sprintf("Task: %s\nTools used: %s\nTool count: %d",
		clean.TaskDescription, clean.ToolsDetail, clean.TotalTools)
	text, err := e.llm.CompleteText(ctx, exampleGenerationSystem, user)
	if err != nil {
		_ = e.store.LogEvent(ctx, "example_generation_failed", err.Error())
		return nil
	}
	var example agent.PlanningExample
	if err := json.Unmarshal([]byte(stripFences(text)), &example); err != nil {
		_ = e.store.LogEvent(ctx, "example_parse_failed", err.Error())
		return nil
	}
	if example.ID == "" {
		example.ID = "ex-" + uuid.NewString()[:8]
	}
	if err := e.gate.CheckContent(example.PlanTemplate + "\n" + example.KeyInsight); err != nil {
		_ = e.store.LogEvent(ctx, "example_rejected", err.Error())
		return nil
	}
	return []agent.PlanningExample{example}
}

// applyEffectiveness recomputes the reusability ladder over evolved and
// external rules: a 30-day window, at least 3 triggers to score, reusable
// at rate >= 0.7 with >= 5 triggers, demoted below 0.5. External rules at
// rate >= 0.7 with priority < 65 are promoted.
func (e *Engine) applyEffectiveness(ctx context.Context, rules []agent.PlanningRule) []agent.PlanningRule {
	since := time.Now().AddDate(0, 0, -30)
	for i := range rules {
		r := &rules[i]
		if r.Origin == agent.OriginSeed {
			continue
		}
		stats, err := e.store.RuleStatsSince(ctx, r.ID, since)
		if err != nil || stats.Triggers < 3 {
			continue
		}
		r.TriggerCount = stats.Triggers
		r.Effectiveness = stats.SuccessRate

		switch {
		case !r.Reusable && stats.SuccessRate >= 0.7 && stats.Triggers >= 5:
			r.Reusable = true
		case r.Reusable && stats.SuccessRate < 0.5:
			r.Reusable = false
		}
		if r.Origin == agent.OriginExternal && stats.SuccessRate >= 0.7 && r.Priority < 65 {
			r.Priority = 65
		}
	}
	return rules
}

func (e *Engine) writeRules(rules []agent.PlanningRule) error {
	if err := e.gate.CheckPath(e.rules.Path()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	return WriteAtomic(e.rules.Path(), append(data, '\n'))
}

func (e *Engine) writeExamples(examples []agent.PlanningExample) error {
	if err := e.gate.CheckPath(e.examples.Path()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return err
	}
	return WriteAtomic(e.examples.Path(), append(data, '\n'))
}

func stripFences(text string) string {
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
