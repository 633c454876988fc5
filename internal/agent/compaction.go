package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/skilllite/pkg/models"
)

// Compaction thresholds. Both triggers coexist: raw message count and the
// approximate token estimate (len/4 heuristic; a provider tokenizer would
// be more precise when available).
const (
	DefaultCompactMessageCount = 40
	DefaultCompactTokenBudget  = 90_000

	// keepRecentMessages is the suffix always preserved verbatim.
	keepRecentMessages = 8
)

const compactionSystem = `Summarize this conversation prefix for an AI agent resuming work.
Keep: the user's goal, decisions made, files touched with paths, tool outcomes, open problems.
Drop: greetings, verbatim file contents, tool call syntax. Be dense.`

// Compactor replaces an old transcript prefix with one summary message.
type Compactor struct {
	summarizer TaskExtractor
	MaxCount   int
	MaxTokens  int
	logger     *slog.Logger
}

// NewCompactor builds a compactor; zero thresholds take defaults.
func NewCompactor(summarizer TaskExtractor, maxCount, maxTokens int) *Compactor {
	if maxCount <= 0 {
		maxCount = DefaultCompactMessageCount
	}
	if maxTokens <= 0 {
		maxTokens = DefaultCompactTokenBudget
	}
	return &Compactor{
		summarizer: summarizer,
		MaxCount:   maxCount,
		MaxTokens:  maxTokens,
		logger:     slog.Default().With("component", "compaction"),
	}
}

// EstimateTokens applies the 4-chars-per-token heuristic over a transcript.
func EstimateTokens(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
		for _, c := range m.ToolCalls {
			total += (len(c.Arguments) + len(c.Name)) / 4
		}
	}
	return total
}

// ShouldCompact reports whether either trigger fires.
func (c *Compactor) ShouldCompact(messages []models.ChatMessage) bool {
	return len(messages) > c.MaxCount || EstimateTokens(messages) > c.MaxTokens
}

// Compact replaces a transcript prefix with a single [compaction] summary
// message, preserving the system message, the most recent messages, and
// tool-call pairing: the cut never lands between an assistant message and
// its tool results.
func (c *Compactor) Compact(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, error) {
	if len(messages) <= keepRecentMessages+2 {
		return messages, nil
	}

	start := 0
	var kept []models.ChatMessage
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		kept = append(kept, messages[0])
		start = 1
	}

	cut := len(messages) - keepRecentMessages
	if cut <= start {
		return messages, nil
	}
	// Move the cut forward past any tool messages so an assistant message
	// with tool_calls is never separated from its results.
	for cut < len(messages) && messages[cut].Role == models.RoleTool {
		cut++
	}
	if cut >= len(messages) {
		return messages, nil
	}

	prefix := messages[start:cut]
	summary, err := c.summarize(ctx, prefix)
	if err != nil {
		return messages, fmt.Errorf("compaction summarization: %w", err)
	}

	kept = append(kept, models.UserMessage("[compaction] Earlier conversation summarized:\n"+summary))
	kept = append(kept, messages[cut:]...)
	c.logger.Info("transcript compacted", "before", len(messages), "after", len(kept))
	return kept, nil
}

func (c *Compactor) summarize(ctx context.Context, prefix []models.ChatMessage) (string, error) {
	if c.summarizer == nil {
		return fmt.Sprintf("(%d earlier messages omitted)", len(prefix)), nil
	}
	var b strings.Builder
	for _, m := range prefix {
		content := m.Content
		if len(content) > 2000 {
			content = content[:2000] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return c.summarizer.CompleteText(ctx, compactionSystem, b.String())
}
