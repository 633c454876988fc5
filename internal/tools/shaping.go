package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// Shaping thresholds. Content at or below the small threshold is returned
// verbatim; one byte over moves it to the next treatment.
const (
	DefaultSmallThreshold  = 4 * 1024
	DefaultMediumThreshold = 32 * 1024
)

// Summarizer condenses long tool output through a separate completion
// call. Implemented by the providers client; nil disables summarization.
type Summarizer interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

const summarizeSystem = `Summarize this tool output for an AI agent. Preserve file paths, error
messages, identifiers, and counts exactly. Be dense and factual.`

// Shaper applies the result post-processing policy: verbatim for short
// content, head+tail truncation for medium, LLM summarization for long
// (with head+tail fallback), and truncation-only for content-preserving
// tools.
type Shaper struct {
	Small      int
	Medium     int
	summarizer Summarizer
	logger     *slog.Logger
}

// NewShaper builds a shaper; zero thresholds take the defaults.
func NewShaper(small, medium int, summarizer Summarizer) *Shaper {
	if small <= 0 {
		small = DefaultSmallThreshold
	}
	if medium <= 0 {
		medium = DefaultMediumThreshold
	}
	return &Shaper{
		Small:      small,
		Medium:     medium,
		summarizer: summarizer,
		logger:     slog.Default().With("component", "shaper"),
	}
}

// Shape returns the post-processed content for one tool result.
func (s *Shaper) Shape(ctx context.Context, toolName, content string, contentPreserving bool) string {
	if len(content) <= s.Small {
		return content
	}
	if contentPreserving || len(content) <= s.Medium {
		return HeadTail(content, s.Small)
	}
	if s.summarizer == nil {
		return HeadTail(content, s.Medium)
	}
	summary, err := s.summarizer.CompleteText(ctx, summarizeSystem, content)
	if err != nil || summary == "" {
		s.logger.Debug("summarization failed, falling back to truncation", "tool", toolName, "error", err)
		return HeadTail(content, s.Medium)
	}
	return fmt.Sprintf("[summarized from %d chars]\n%s", len(content), summary)
}

// HeadTail truncates content to cap bytes, keeping the first two thirds
// from the head and the final third from the tail around a sentinel that
// names the original size.
func HeadTail(content string, cap int) string {
	if len(content) <= cap {
		return content
	}
	sentinel := fmt.Sprintf("\n[... output truncated: %d total chars ...]\n", len(content))
	budget := cap - len(sentinel)
	if budget <= 0 {
		return sentinel
	}
	head := budget * 2 / 3
	tail := budget - head
	return content[:head] + sentinel + content[len(content)-tail:]
}

// HeadTailCap is the in-place truncation applied to tool messages during
// context-overflow recovery: 8000 chars head-and-tail.
const HeadTailCap = 8000
