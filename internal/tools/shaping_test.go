package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) CompleteText(context.Context, string, string) (string, error) {
	f.calls++
	return f.summary, f.err
}

func TestShape(t *testing.T) {
	ctx := context.Background()

	t.Run("exact small threshold is verbatim", func(t *testing.T) {
		s := NewShaper(0, 0, nil)
		content := strings.Repeat("a", DefaultSmallThreshold)
		if got := s.Shape(ctx, "grep_files", content, false); got != content {
			t.Error("content at the threshold must be returned verbatim")
		}
	})

	t.Run("one byte over triggers truncation", func(t *testing.T) {
		s := NewShaper(0, 0, nil)
		content := strings.Repeat("a", DefaultSmallThreshold+1)
		got := s.Shape(ctx, "grep_files", content, false)
		if got == content {
			t.Error("content over the threshold must be shaped")
		}
	})

	t.Run("long content summarized", func(t *testing.T) {
		sum := &fakeSummarizer{summary: "short summary"}
		s := NewShaper(0, 0, sum)
		content := strings.Repeat("b", DefaultMediumThreshold+1)
		got := s.Shape(ctx, "grep_files", content, false)
		if !strings.Contains(got, "short summary") {
			t.Errorf("expected summary, got %q", got[:80])
		}
		if sum.calls != 1 {
			t.Errorf("summarizer calls = %d, want 1", sum.calls)
		}
	})

	t.Run("summarization failure falls back to head tail", func(t *testing.T) {
		sum := &fakeSummarizer{err: errors.New("model down")}
		s := NewShaper(0, 0, sum)
		content := strings.Repeat("c", DefaultMediumThreshold+1)
		got := s.Shape(ctx, "grep_files", content, false)
		if !strings.Contains(got, "output truncated") {
			t.Error("expected head+tail fallback")
		}
	})

	t.Run("content preserving tool never summarized", func(t *testing.T) {
		sum := &fakeSummarizer{summary: "must not appear"}
		s := NewShaper(0, 0, sum)
		content := strings.Repeat("d", 200_000)
		got := s.Shape(ctx, "read_file", content, true)
		if sum.calls != 0 {
			t.Errorf("summarizer called %d times for content-preserving tool", sum.calls)
		}
		want := fmt.Sprintf("[... output truncated: %d total chars ...]", len(content))
		if !strings.Contains(got, want) {
			t.Errorf("missing sentinel %q", want)
		}
	})
}

// TestHeadTailProportions verifies the 2/3 head, 1/3 tail split around the
// sentinel, the shape required by the content-preserving scenario.
func TestHeadTailProportions(t *testing.T) {
	content := strings.Repeat("H", 100_000) + strings.Repeat("T", 100_000)
	got := HeadTail(content, DefaultMediumThreshold)

	sentinel := fmt.Sprintf("[... output truncated: %d total chars ...]", len(content))
	idx := strings.Index(got, sentinel)
	if idx < 0 {
		t.Fatalf("sentinel not found in output")
	}
	head := got[:idx]
	tail := got[idx+len(sentinel):]

	if !strings.HasPrefix(head, "H") {
		t.Error("head segment must come from the start of the content")
	}
	if !strings.HasSuffix(strings.TrimSpace(tail), "T") {
		t.Error("tail segment must come from the end of the content")
	}
	// Head is roughly twice the tail.
	ratio := float64(len(head)) / float64(len(strings.TrimSpace(tail)))
	if ratio < 1.5 || ratio > 2.5 {
		t.Errorf("head/tail ratio = %.2f, want about 2", ratio)
	}
	if len(got) > DefaultMediumThreshold {
		t.Errorf("output length %d exceeds cap %d", len(got), DefaultMediumThreshold)
	}
}

func TestHeadTailShortContentUntouched(t *testing.T) {
	if got := HeadTail("short", 100); got != "short" {
		t.Errorf("HeadTail modified short content: %q", got)
	}
}

func TestRedactSensitive(t *testing.T) {
	t.Run("redacts assignments", func(t *testing.T) {
		in := "API_KEY=sk-abc123 PASSWORD: hunter2\nother=fine"
		got, redacted := RedactSensitive(in)
		if !redacted {
			t.Fatal("expected redaction flag")
		}
		if strings.Contains(got, "sk-abc123") || strings.Contains(got, "hunter2") {
			t.Errorf("secrets leaked: %q", got)
		}
		if !strings.Contains(got, "other=fine") {
			t.Error("unrelated assignment modified")
		}
	})

	t.Run("case insensitive names", func(t *testing.T) {
		got, redacted := RedactSensitive("my_Secret_Token = abc")
		if !redacted || strings.Contains(got, "abc") {
			t.Errorf("mixed-case secret not redacted: %q", got)
		}
	})

	t.Run("clean output untouched", func(t *testing.T) {
		in := "total 12\n-rw-r--r-- file.txt"
		got, redacted := RedactSensitive(in)
		if redacted || got != in {
			t.Errorf("clean output modified: %q", got)
		}
	})
}
