package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/internal/tools"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// scriptedLLM returns queued responses in order, repeating the last one.
type scriptedLLM struct {
	responses []*models.ChatMessage
	calls     int
	errs      map[int]error
}

func (s *scriptedLLM) next() (*models.ChatMessage, error) {
	idx := s.calls
	s.calls++
	if err, ok := s.errs[idx]; ok {
		return nil, err
	}
	if idx >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[idx], nil
}

func (s *scriptedLLM) Complete(context.Context, []models.ChatMessage, []models.ToolDefinition) (*models.ChatMessage, error) {
	return s.next()
}

func (s *scriptedLLM) CompleteStream(_ context.Context, _ []models.ChatMessage, _ []models.ToolDefinition, _ func(string)) (*models.ChatMessage, error) {
	return s.next()
}

func (s *scriptedLLM) CompleteText(context.Context, string, string) (string, error) {
	return `{"tasks": []}`, nil
}

// echoTool is a registerable tool with a controllable outcome.
type echoTool struct {
	name string
	fail bool
}

func (e *echoTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{Name: e.name, Description: "test tool",
		Parameters: []byte(`{"type":"object"}`)}
}

func (e *echoTool) Execute(context.Context, string) (string, error) {
	if e.fail {
		return "", errors.New("boom")
	}
	return "ok", nil
}

func newTestLoop(t *testing.T, llm LLM, skills map[string]*skill.Skill, cfg Config, registered ...tools.Tool) *Loop {
	t.Helper()
	registry := tools.NewRegistry(tools.NewShaper(0, 0, nil))
	for _, tool := range registered {
		if err := registry.Register(tool); err != nil {
			t.Fatal(err)
		}
	}
	promptsDir := filepath.Join(t.TempDir(), "prompts")
	planner := NewPlanner(NewRuleStore(promptsDir), NewExampleStore(promptsDir), nil)
	state := session.New(t.TempDir())
	return NewLoop(llm, nil, registry, skills, planner, nil, state, t.TempDir(), cfg)
}

func assistantWithCalls(calls ...models.ToolCall) *models.ChatMessage {
	return &models.ChatMessage{Role: models.RoleAssistant, ToolCalls: calls}
}

func assistantText(text string) *models.ChatMessage {
	return &models.ChatMessage{Role: models.RoleAssistant, Content: text}
}

func TestRunTurn(t *testing.T) {
	t.Run("plain completion", func(t *testing.T) {
		llm := &scriptedLLM{responses: []*models.ChatMessage{
			assistantText("done"),
		}}
		loop := newTestLoop(t, llm, nil, DefaultConfig())
		result, err := loop.RunTurn(context.Background(), "hello", nil)
		if err != nil {
			t.Fatalf("RunTurn error: %v", err)
		}
		if result.FinalText != "done" {
			t.Errorf("FinalText = %q, want done", result.FinalText)
		}
		if llm.calls != 1 {
			t.Errorf("model calls = %d, want 1", llm.calls)
		}
	})

	t.Run("tool dispatch then completion", func(t *testing.T) {
		llm := &scriptedLLM{responses: []*models.ChatMessage{
			assistantWithCalls(models.ToolCall{ID: "1", Name: "echo", Arguments: "{}"}),
			assistantText("finished"),
		}}
		loop := newTestLoop(t, llm, nil, DefaultConfig(), &echoTool{name: "echo"})
		result, err := loop.RunTurn(context.Background(), "go", nil)
		if err != nil {
			t.Fatalf("RunTurn error: %v", err)
		}
		if result.ToolCalls != 1 {
			t.Errorf("ToolCalls = %d, want 1", result.ToolCalls)
		}
		if err := validatePairing(result.Messages); err != nil {
			t.Errorf("pairing invariant violated: %v", err)
		}
	})

	t.Run("max iterations one runs one model call without dispatch", func(t *testing.T) {
		llm := &scriptedLLM{responses: []*models.ChatMessage{
			assistantWithCalls(models.ToolCall{ID: "1", Name: "echo", Arguments: "{}"}),
		}}
		cfg := DefaultConfig()
		cfg.MaxIterations = 1
		loop := newTestLoop(t, llm, nil, cfg, &echoTool{name: "echo"})
		result, err := loop.RunTurn(context.Background(), "go", nil)
		if err != nil {
			t.Fatalf("RunTurn error: %v", err)
		}
		if llm.calls != 1 {
			t.Errorf("model calls = %d, want exactly 1", llm.calls)
		}
		if result.ToolCalls != 0 {
			t.Errorf("ToolCalls = %d, want 0 (no dispatch on final iteration)", result.ToolCalls)
		}
		if result.FinalText != completionSentinel {
			t.Errorf("FinalText = %q, want sentinel", result.FinalText)
		}
	})

	t.Run("consecutive failures terminate", func(t *testing.T) {
		failing := assistantWithCalls(models.ToolCall{ID: "f", Name: "broken", Arguments: "{}"})
		llm := &scriptedLLM{responses: []*models.ChatMessage{failing}}
		cfg := DefaultConfig()
		cfg.MaxConsecutiveFailures = 2
		loop := newTestLoop(t, llm, nil, cfg, &echoTool{name: "broken", fail: true})
		_, err := loop.RunTurn(context.Background(), "go", nil)
		if err == nil {
			t.Fatal("expected consecutive-failure termination")
		}
		var cf *ConsecutiveFailuresError
		if !errors.As(err, &cf) {
			t.Fatalf("error = %v, want ConsecutiveFailuresError", err)
		}
		if cf.Count != 2 {
			t.Errorf("Count = %d, want 2", cf.Count)
		}
	})

	t.Run("zero failure cap never terminates on failure", func(t *testing.T) {
		llm := &scriptedLLM{responses: []*models.ChatMessage{
			assistantWithCalls(models.ToolCall{ID: "f", Name: "broken", Arguments: "{}"}),
			assistantWithCalls(models.ToolCall{ID: "f2", Name: "broken", Arguments: "{}"}),
			assistantText("survived"),
		}}
		cfg := DefaultConfig()
		cfg.MaxConsecutiveFailures = 0
		loop := newTestLoop(t, llm, nil, cfg, &echoTool{name: "broken", fail: true})
		result, err := loop.RunTurn(context.Background(), "go", nil)
		if err != nil {
			t.Fatalf("RunTurn error: %v", err)
		}
		if result.FinalText != "survived" {
			t.Errorf("FinalText = %q", result.FinalText)
		}
	})

	t.Run("error result resets on success", func(t *testing.T) {
		llm := &scriptedLLM{responses: []*models.ChatMessage{
			assistantWithCalls(models.ToolCall{ID: "1", Name: "broken", Arguments: "{}"}),
			assistantWithCalls(models.ToolCall{ID: "2", Name: "echo", Arguments: "{}"}),
			assistantWithCalls(models.ToolCall{ID: "3", Name: "broken", Arguments: "{}"}),
			assistantText("done"),
		}}
		cfg := DefaultConfig()
		cfg.MaxConsecutiveFailures = 2
		loop := newTestLoop(t, llm, nil, cfg,
			&echoTool{name: "echo"}, &echoTool{name: "broken", fail: true})
		if _, err := loop.RunTurn(context.Background(), "go", nil); err != nil {
			t.Fatalf("interleaved failures terminated the turn: %v", err)
		}
	})
}

// TestProgressiveDisclosure covers scenario 3: the first call to a skill
// tool injects SKILL.md instead of executing, and the next iteration is a
// fresh model call.
func TestProgressiveDisclosure(t *testing.T) {
	skillDir := t.TempDir()
	body := "# My Skill\n\nDetailed instructions for my-skill."
	sk := &skill.Skill{
		Name:        "my-skill",
		Description: "does things",
		Dir:         skillDir,
		Kind:        skill.KindScript,
		EntryPoint:  "scripts/main.py",
		Language:    skill.LanguagePython,
		Content:     body,
	}
	skills := map[string]*skill.Skill{"my-skill": sk}

	llm := &scriptedLLM{responses: []*models.ChatMessage{
		assistantWithCalls(models.ToolCall{ID: "1", Name: "my_skill", Arguments: "{}"}),
		assistantText("done after docs"),
	}}
	// The skill tool is registered but must NOT run on first use.
	ran := &echoTool{name: "my_skill"}
	loop := newTestLoop(t, llm, skills, DefaultConfig(), ran)

	result, err := loop.RunTurn(context.Background(), "use my-skill", nil)
	if err != nil {
		t.Fatalf("RunTurn error: %v", err)
	}

	// (a)+(b): no assistant message with unresolved calls; one user
	// message carrying the SKILL.md body.
	if err := validatePairing(result.Messages); err != nil {
		t.Errorf("pairing invariant violated: %v", err)
	}
	docCount := 0
	for _, m := range result.Messages {
		if m.Role == models.RoleUser && strings.Contains(m.Content, body) {
			docCount++
		}
		if m.Role == models.RoleAssistant && len(m.ToolCalls) > 0 {
			t.Error("deferred tool-call message should not be in the transcript")
		}
	}
	if docCount != 1 {
		t.Errorf("documentation messages = %d, want exactly 1", docCount)
	}

	// (c): the skill is recorded as documented.
	if !loop.state.DocumentedSkills["my-skill"] {
		t.Error("skill not marked documented")
	}

	// (d): a fresh model call followed, no dispatch of the deferred call.
	if llm.calls != 2 {
		t.Errorf("model calls = %d, want 2", llm.calls)
	}
	if result.ToolCalls != 0 {
		t.Errorf("ToolCalls = %d, want 0", result.ToolCalls)
	}
}

func TestDisclosureReferencesTruncated(t *testing.T) {
	dir := t.TempDir()
	refs := filepath.Join(dir, "references")
	if err := os.MkdirAll(refs, 0o755); err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("r", 20_000)
	if err := os.WriteFile(filepath.Join(refs, "guide.md"), []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}
	sk := &skill.Skill{Name: "docs", Dir: dir, Content: "body"}

	doc := DisclosureDoc(sk)
	if !strings.Contains(doc, "guide.md") {
		t.Fatal("reference not included")
	}
	if strings.Contains(doc, long) {
		t.Error("reference not truncated")
	}
	if !strings.Contains(doc, "[reference truncated]") {
		t.Error("truncation marker missing")
	}
}

func TestContextOverflowRecovery(t *testing.T) {
	overflowErr := errors.New("maximum context length exceeded")
	llm := &scriptedLLM{
		responses: []*models.ChatMessage{assistantText("recovered")},
		errs:      map[int]error{0: overflowErr},
	}
	loop := newTestLoop(t, llm, nil, DefaultConfig())
	loop.isOverflow = func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "maximum context length")
	}
	// Seed a huge tool message pair that recovery must truncate.
	loop.state.Messages = []models.ChatMessage{
		models.SystemMessage("sys"),
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "1", Name: "x"}}},
		models.ToolMessage("1", "x", strings.Repeat("z", 100_000)),
	}

	result, err := loop.RunTurn(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("RunTurn error: %v", err)
	}
	if result.FinalText != "recovered" {
		t.Errorf("FinalText = %q", result.FinalText)
	}
	for _, m := range result.Messages {
		if m.Role == models.RoleTool && len(m.Content) > tools.HeadTailCap {
			t.Errorf("tool message not truncated: %d chars", len(m.Content))
		}
	}
	if llm.calls != 2 {
		t.Errorf("model calls = %d, want 2 (one retry)", llm.calls)
	}
}

func TestValidatePairing(t *testing.T) {
	t.Run("valid transcript", func(t *testing.T) {
		messages := []models.ChatMessage{
			models.SystemMessage("sys"),
			models.UserMessage("hi"),
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "a", Name: "t"}, {ID: "b", Name: "t"}}},
			models.ToolMessage("a", "t", "r1"),
			models.ToolMessage("b", "t", "r2"),
			models.AssistantMessage("done"),
		}
		if err := validatePairing(messages); err != nil {
			t.Errorf("valid transcript rejected: %v", err)
		}
	})

	t.Run("unresolved call detected", func(t *testing.T) {
		messages := []models.ChatMessage{
			{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "a", Name: "t"}}},
			models.AssistantMessage("next"),
		}
		if err := validatePairing(messages); !errors.Is(err, ErrProtocolViolation) {
			t.Errorf("error = %v, want protocol violation", err)
		}
	})
}

func TestLastAssistantText(t *testing.T) {
	messages := []models.ChatMessage{
		models.AssistantMessage("first"),
		models.UserMessage("u"),
		models.AssistantMessage("second"),
	}
	if got := lastAssistantText(messages); got != "second" {
		t.Errorf("lastAssistantText = %q", got)
	}
	if got := lastAssistantText(nil); got != "" {
		t.Errorf("empty transcript returned %q", got)
	}
}

