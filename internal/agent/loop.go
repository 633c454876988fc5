package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/internal/tools"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// LLM is the completion surface the loop depends on.
type LLM interface {
	Complete(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition) (*models.ChatMessage, error)
	CompleteStream(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition, onChunk func(string)) (*models.ChatMessage, error)
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// OverflowChecker reports whether a model error is a context overflow; it
// is split from LLM so tests can fake it.
type OverflowChecker func(error) bool

// Config bounds a turn.
type Config struct {
	// MaxIterations caps loop passes per turn. Default 50.
	MaxIterations int

	// MaxConsecutiveFailures terminates the turn when that many tool
	// errors occur in a row. 0 disables the cap. Default 5.
	MaxConsecutiveFailures int

	// GoalLLMExtract enables the secondary LLM goal-extraction pass.
	GoalLLMExtract bool

	// Streaming uses the streaming completion path with text chunks.
	Streaming bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: 50, MaxConsecutiveFailures: 5, Streaming: true}
}

// Result is the outcome of one completed turn.
type Result struct {
	FinalText  string
	Messages   []models.ChatMessage
	Iterations int
	ToolCalls  int
	Plan       *models.TaskPlan
	Feedback   session.ExecutionFeedback

	// MatchedRuleID names the planning rule that shaped the turn, for
	// effectiveness tracking. Empty when no rule matched.
	MatchedRuleID string
}

// completionSentinel is returned when the budget expires without any
// assistant text.
const completionSentinel = "agent completed without text response"

// Loop drives one session's turns. It exclusively owns the session state
// for its lifetime; suspension points are model calls and sandboxed
// spawns, and the loop is otherwise single-threaded.
type Loop struct {
	llm        LLM
	isOverflow OverflowChecker
	registry   *tools.Registry
	skills     map[string]*skill.Skill
	planner    *Planner
	compactor  *Compactor
	state      *session.State
	chatHome   string
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer

	matchedRuleID string
}

// NewLoop builds a loop over a session.
func NewLoop(llm LLM, isOverflow OverflowChecker, registry *tools.Registry,
	skills map[string]*skill.Skill, planner *Planner, compactor *Compactor,
	state *session.State, chatHome string, cfg Config) *Loop {

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if isOverflow == nil {
		isOverflow = func(error) bool { return false }
	}
	return &Loop{
		llm:        llm,
		isOverflow: isOverflow,
		registry:   registry,
		skills:     skills,
		planner:    planner,
		compactor:  compactor,
		state:      state,
		chatHome:   chatHome,
		cfg:        cfg,
		logger:     slog.Default().With("component", "agent"),
		tracer:     otel.Tracer("skilllite/agent"),
	}
}

// RunTurn processes one user message to completion.
func (l *Loop) RunTurn(ctx context.Context, userMessage string, sink models.EventSink) (*Result, error) {
	ctx, span := l.tracer.Start(ctx, "agent.turn")
	defer span.End()
	if sink == nil {
		sink = models.NopSink{}
	}
	started := time.Now()

	// Planning runs on the first iteration of the turn.
	plan, matchedRule, err := l.planner.Plan(ctx, userMessage)
	if err != nil {
		l.logger.Warn("planning failed", "error", err)
		plan = &models.TaskPlan{}
	}
	if matchedRule != nil {
		l.matchedRuleID = matchedRule.ID
	}
	if !plan.Empty() {
		l.state.TaskPlan = plan
		sink.OnTaskPlan(plan)
	}
	goal := ExtractGoal(ctx, l.llm, userMessage, l.cfg.GoalLLMExtract)

	l.ensureSystemMessage(plan, goal)
	l.state.Messages = append(l.state.Messages, models.UserMessage(userMessage))

	var finalText string
	turnIterations := 0

	for turnIterations < l.cfg.MaxIterations {
		if err := validatePairing(l.state.Messages); err != nil {
			return nil, &TurnError{Phase: "validate", Iteration: turnIterations, Cause: err}
		}

		assistant, err := l.modelCall(ctx, sink)
		if err != nil {
			return nil, &TurnError{Phase: "model", Iteration: turnIterations, Cause: err}
		}
		turnIterations++
		l.state.Iterations++

		// No tool calls: the turn is complete.
		if len(assistant.ToolCalls) == 0 {
			l.state.Messages = append(l.state.Messages, *assistant)
			finalText = assistant.Content
			if finalText != "" {
				sink.OnText(finalText)
			}
			l.state.Feedback.Completed = true
			return l.result(finalText, started), nil
		}

		// Budget check before dispatch: the final iteration's tool
		// requests terminate the turn without executing.
		if turnIterations >= l.cfg.MaxIterations {
			break
		}

		// Progressive disclosure: a first-use skill tool defers the calls
		// and injects full documentation instead.
		if sk := l.undocumentedSkill(assistant.ToolCalls); sk != nil {
			l.state.Messages = append(l.state.Messages, models.UserMessage(DisclosureDoc(sk)))
			l.state.DocumentedSkills[sk.Name] = true
			l.logger.Debug("injected skill documentation", "skill", sk.Name)
			continue
		}

		l.state.Messages = append(l.state.Messages, *assistant)
		if assistant.Content != "" {
			sink.OnText(assistant.Content)
		}

		// Dispatch sequentially in model-supplied order; later tools may
		// depend on earlier tools' workspace effects.
		for _, call := range assistant.ToolCalls {
			sink.OnToolCall(call.Name, call.Arguments)
			result := l.registry.Dispatch(ctx, call, sink)
			sink.OnToolResult(call.Name, result.Content, result.IsError)

			l.state.RecordToolResult(result)
			l.state.Messages = append(l.state.Messages,
				models.ToolMessage(call.ID, call.Name, result.Content))

			if l.cfg.MaxConsecutiveFailures > 0 &&
				l.state.ConsecutiveFailures >= l.cfg.MaxConsecutiveFailures {
				// Remaining calls still need results to keep the pairing
				// invariant before we abort.
				l.failRemaining(assistant.ToolCalls, call.ID)
				return nil, &TurnError{
					Phase:     "dispatch",
					Iteration: turnIterations,
					Cause:     &ConsecutiveFailuresError{Count: l.state.ConsecutiveFailures},
				}
			}
		}

		if l.compactor != nil && l.compactor.ShouldCompact(l.state.Messages) {
			compacted, err := l.compactor.Compact(ctx, l.state.Messages)
			if err != nil {
				l.logger.Warn("compaction failed", "error", err)
			} else {
				l.state.Messages = compacted
			}
		}
	}

	// Budget exhausted: return the last assistant text if any.
	span.SetAttributes(attribute.Bool("budget_exhausted", true))
	finalText = lastAssistantText(l.state.Messages)
	if finalText == "" {
		finalText = completionSentinel
	}
	return l.result(finalText, started), nil
}

// modelCall performs one completion with context-overflow recovery: on an
// overflow error every tool message is truncated in place and the call is
// retried once.
func (l *Loop) modelCall(ctx context.Context, sink models.EventSink) (*models.ChatMessage, error) {
	defs := l.registry.Definitions()

	call := func() (*models.ChatMessage, error) {
		if l.cfg.Streaming {
			return l.llm.CompleteStream(ctx, l.state.Messages, defs, sink.OnTextChunk)
		}
		return l.llm.Complete(ctx, l.state.Messages, defs)
	}

	assistant, err := call()
	if err != nil && l.isOverflow(err) {
		l.logger.Warn("context overflow, truncating tool messages and retrying")
		for i := range l.state.Messages {
			if l.state.Messages[i].Role == models.RoleTool {
				l.state.Messages[i].Content = tools.HeadTail(l.state.Messages[i].Content, tools.HeadTailCap)
			}
		}
		assistant, err = call()
	}
	if err != nil {
		return nil, err
	}
	if assistant.Role == "" {
		assistant.Role = models.RoleAssistant
	}
	return assistant, nil
}

// undocumentedSkill returns the owning skill of the first tool call that
// belongs to a not-yet-documented skill.
func (l *Loop) undocumentedSkill(calls []models.ToolCall) *skill.Skill {
	for _, call := range calls {
		if sk := skillForTool(l.skills, call.Name); sk != nil && !l.state.DocumentedSkills[sk.Name] {
			return sk
		}
	}
	return nil
}

// failRemaining appends error results for calls after lastDispatched so
// the transcript keeps the pairing invariant on abort.
func (l *Loop) failRemaining(calls []models.ToolCall, lastDispatched string) {
	seen := false
	for _, call := range calls {
		if call.ID == lastDispatched {
			seen = true
			continue
		}
		if seen {
			l.state.Messages = append(l.state.Messages,
				models.ToolMessage(call.ID, call.Name, "skipped: turn aborted"))
		}
	}
}

// ensureSystemMessage installs or refreshes the leading system message.
func (l *Loop) ensureSystemMessage(plan *models.TaskPlan, goal *GoalBoundary) {
	prompt := BuildSystemPrompt(l.chatHome, l.skills, plan, goal)
	if len(l.state.Messages) > 0 && l.state.Messages[0].Role == models.RoleSystem {
		l.state.Messages[0].Content = prompt
		return
	}
	l.state.Messages = append([]models.ChatMessage{models.SystemMessage(prompt)}, l.state.Messages...)
}

func (l *Loop) result(finalText string, started time.Time) *Result {
	l.state.Feedback.Elapsed = time.Since(started)
	return &Result{
		FinalText:     finalText,
		Messages:      l.state.Messages,
		Iterations:    l.state.Iterations,
		ToolCalls:     l.state.ToolCallsCount,
		Plan:          l.state.TaskPlan,
		Feedback:      l.state.Feedback,
		MatchedRuleID: l.matchedRuleID,
	}
}

// validatePairing enforces the transcript invariant: every assistant
// message bearing tool_calls is immediately followed by a matching tool
// message per call id before the next assistant message.
func validatePairing(messages []models.ChatMessage) error {
	for i, m := range messages {
		if m.Role != models.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		expected := make(map[string]bool, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			expected[c.ID] = true
		}
		j := i + 1
		for j < len(messages) && messages[j].Role == models.RoleTool {
			delete(expected, messages[j].ToolCallID)
			j++
		}
		if len(expected) > 0 {
			return fmt.Errorf("%w: %d unresolved tool calls at message %d",
				ErrProtocolViolation, len(expected), i)
		}
	}
	return nil
}

func lastAssistantText(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
