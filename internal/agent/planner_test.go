package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/pkg/models"
)

func TestMatchRules(t *testing.T) {
	rules := []PlanningRule{
		{ID: "low", Priority: 50, Keywords: []string{"report"}},
		{ID: "high", Priority: 90, Keywords: []string{"report"}},
		{ID: "ctx", Priority: 95, Keywords: []string{"report"}, ContextKeywords: []string{"quarterly"}},
	}

	t.Run("descending priority", func(t *testing.T) {
		matched := MatchRules(rules, "write a report please")
		if len(matched) != 2 {
			t.Fatalf("matched %d rules, want 2", len(matched))
		}
		if matched[0].ID != "high" {
			t.Errorf("first match = %s, want high", matched[0].ID)
		}
	})

	t.Run("context keywords gate", func(t *testing.T) {
		matched := MatchRules(rules, "write a quarterly report")
		if matched[0].ID != "ctx" {
			t.Errorf("first match = %s, want ctx", matched[0].ID)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		if len(MatchRules(rules, "WRITE A REPORT")) == 0 {
			t.Error("uppercase message did not match")
		}
	})

	t.Run("no match", func(t *testing.T) {
		if len(MatchRules(rules, "unrelated request")) != 0 {
			t.Error("unexpected match")
		}
	})
}

func TestExplicitSkillRule(t *testing.T) {
	rules := SeedRules()
	matched := MatchRules(rules, "please use skill chart-maker for this")
	if len(matched) == 0 || matched[0].ID != "explicit_skill" {
		t.Fatalf("explicit_skill not forced, matched: %v", matched)
	}
	if matched[0].Priority != 100 {
		t.Errorf("priority = %d, want 100", matched[0].Priority)
	}
	if got := ExplicitSkillName("use skill chart-maker now"); got != "chart-maker" {
		t.Errorf("ExplicitSkillName = %q", got)
	}
}

func TestRuleStoreSeedsOnFirstLoad(t *testing.T) {
	store := NewRuleStore(t.TempDir())
	rules, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(rules) == 0 {
		t.Fatal("seed rules not installed")
	}
	for _, r := range rules {
		if r.Origin != OriginSeed {
			t.Errorf("rule %s origin = %q, want seed", r.ID, r.Origin)
		}
		if r.Mutable {
			t.Errorf("seed rule %s is mutable", r.ID)
		}
	}
	// Second load reads the persisted file.
	again, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(rules) {
		t.Errorf("reload returned %d rules, want %d", len(again), len(rules))
	}
}

type plannerLLM struct {
	response string
}

func (p *plannerLLM) CompleteText(context.Context, string, string) (string, error) {
	return p.response, nil
}

func TestPlanner(t *testing.T) {
	t.Run("llm extraction", func(t *testing.T) {
		store := NewRuleStore(t.TempDir())
		llm := &plannerLLM{response: `{"tasks": [
			{"id": 1, "description": "read the data"},
			{"id": 2, "description": "summarize findings"}
		]}`}
		planner := NewPlanner(store, nil, llm)
		plan, _, err := planner.Plan(context.Background(), "analyze data.csv")
		if err != nil {
			t.Fatalf("Plan error: %v", err)
		}
		if len(plan.Tasks) != 2 {
			t.Fatalf("tasks = %d, want 2", len(plan.Tasks))
		}
		if plan.Tasks[0].Description != "read the data" {
			t.Errorf("task 1 = %q", plan.Tasks[0].Description)
		}
	})

	t.Run("malformed llm output falls back to rules", func(t *testing.T) {
		store := NewRuleStore(t.TempDir())
		planner := NewPlanner(store, nil, &plannerLLM{response: "not json at all"})
		plan, top, err := planner.Plan(context.Background(), "analyze the dataset")
		if err != nil {
			t.Fatalf("Plan error: %v", err)
		}
		if top == nil {
			t.Fatal("no rule matched 'analyze'")
		}
		if plan.Empty() {
			t.Error("rule-only fallback produced empty plan")
		}
	})

	t.Run("no extractor uses rules directly", func(t *testing.T) {
		store := NewRuleStore(t.TempDir())
		planner := NewPlanner(store, nil, nil)
		plan, _, err := planner.Plan(context.Background(), "fix the bug in parser")
		if err != nil {
			t.Fatal(err)
		}
		if plan.Empty() {
			t.Error("expected rule-derived plan")
		}
	})
}

func TestTaskPlanValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		plan := models.TaskPlan{Tasks: []models.Task{{ID: 1, Description: "a"}, {ID: 2, Description: "b"}}}
		if err := plan.Validate(); err != nil {
			t.Errorf("valid plan rejected: %v", err)
		}
	})
	t.Run("empty rejected", func(t *testing.T) {
		plan := models.TaskPlan{}
		if err := plan.Validate(); err == nil {
			t.Error("empty plan accepted")
		}
	})
	t.Run("duplicate id rejected", func(t *testing.T) {
		plan := models.TaskPlan{Tasks: []models.Task{{ID: 1, Description: "a"}, {ID: 1, Description: "b"}}}
		if err := plan.Validate(); err == nil {
			t.Error("duplicate ids accepted")
		}
	})
	t.Run("empty description rejected", func(t *testing.T) {
		plan := models.TaskPlan{Tasks: []models.Task{{ID: 1, Description: ""}}}
		if err := plan.Validate(); err == nil {
			t.Error("empty description accepted")
		}
	})
}

func TestExtractGoalRegex(t *testing.T) {
	t.Run("extracts all segments", func(t *testing.T) {
		g := ExtractGoalRegex("Only the parser package. Don't touch the tests. Stop when the build is green.")
		if g.Scope == "" {
			t.Error("scope not extracted")
		}
		if len(g.Exclusions) == 0 {
			t.Error("exclusion not extracted")
		}
		if len(g.CompletionConditions) == 0 {
			t.Error("completion condition not extracted")
		}
	})

	t.Run("empty message", func(t *testing.T) {
		g := ExtractGoalRegex("make it nicer")
		if !g.Empty() {
			t.Errorf("expected empty boundary, got %+v", g)
		}
	})
}

func TestCompaction(t *testing.T) {
	summarizer := &plannerLLM{response: "summary of earlier work"}
	c := NewCompactor(summarizer, 10, 1_000_000)

	var messages []models.ChatMessage
	messages = append(messages, models.SystemMessage("system prompt"))
	for i := 0; i < 20; i++ {
		messages = append(messages, models.UserMessage(strings.Repeat("m", 50)))
		messages = append(messages, models.AssistantMessage("ok"))
	}

	if !c.ShouldCompact(messages) {
		t.Fatal("ShouldCompact = false over message-count threshold")
	}
	compacted, err := c.Compact(context.Background(), messages)
	if err != nil {
		t.Fatalf("Compact error: %v", err)
	}
	if len(compacted) >= len(messages) {
		t.Errorf("compaction did not shrink transcript: %d -> %d", len(messages), len(compacted))
	}
	if compacted[0].Role != models.RoleSystem {
		t.Error("system message not preserved at index 0")
	}
	if !strings.Contains(compacted[1].Content, "[compaction]") {
		t.Errorf("summary message missing, got %q", compacted[1].Content)
	}
	// The recent suffix is preserved verbatim.
	tail := compacted[len(compacted)-keepRecentMessages:]
	orig := messages[len(messages)-keepRecentMessages:]
	for i := range tail {
		if tail[i].Content != orig[i].Content {
			t.Errorf("recent message %d altered", i)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleUser, Content: strings.Repeat("a", 400)},
	}
	if got := EstimateTokens(messages); got != 100 {
		t.Errorf("EstimateTokens = %d, want 100", got)
	}
}
