package session

import (
	"testing"

	"github.com/haasonsaas/skilllite/pkg/models"
)

func TestRecordToolResult(t *testing.T) {
	s := New(t.TempDir())

	s.RecordToolResult(models.ToolResult{ToolName: "a", IsError: true})
	s.RecordToolResult(models.ToolResult{ToolName: "b", IsError: true})
	if s.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", s.ConsecutiveFailures)
	}

	s.RecordToolResult(models.ToolResult{ToolName: "c"})
	if s.ConsecutiveFailures != 0 {
		t.Errorf("success did not reset failures: %d", s.ConsecutiveFailures)
	}
	if s.ToolCallsCount != 3 || s.Feedback.TotalTools != 3 || s.Feedback.FailedTools != 2 {
		t.Errorf("counters = %d/%d/%d", s.ToolCallsCount, s.Feedback.TotalTools, s.Feedback.FailedTools)
	}
}

func TestClear(t *testing.T) {
	s := New(t.TempDir())
	s.Messages = append(s.Messages, models.UserMessage("hi"))
	s.DocumentedSkills["x"] = true
	s.ConsecutiveFailures = 3

	s.Clear()
	if len(s.Messages) != 0 || len(s.DocumentedSkills) != 0 || s.ConsecutiveFailures != 0 {
		t.Error("Clear did not reset state")
	}
	if s.SessionID == "" {
		t.Error("Clear must keep the session identity")
	}
}

func TestPersister(t *testing.T) {
	root := t.TempDir()
	p := NewPersister(root)
	s := New(t.TempDir())

	t.Run("transcript round trip", func(t *testing.T) {
		messages := []models.ChatMessage{
			models.UserMessage("hello"),
			models.AssistantMessage("hi there"),
		}
		if err := p.AppendTranscript(s.SessionKey, messages); err != nil {
			t.Fatalf("AppendTranscript: %v", err)
		}
		got, err := p.ReadTranscript(s.SessionKey)
		if err != nil {
			t.Fatalf("ReadTranscript: %v", err)
		}
		if len(got) != 2 || got[0].Content != "hello" {
			t.Errorf("transcript = %+v", got)
		}
	})

	t.Run("plan round trip", func(t *testing.T) {
		plan := &models.TaskPlan{Tasks: []models.Task{{ID: 1, Description: "do"}}}
		if err := p.SavePlan(s.SessionKey, plan); err != nil {
			t.Fatalf("SavePlan: %v", err)
		}
		got, err := p.ReadPlan(s.SessionKey)
		if err != nil || got == nil {
			t.Fatalf("ReadPlan: %v", err)
		}
		if len(got.Tasks) != 1 || got.Tasks[0].Description != "do" {
			t.Errorf("plan = %+v", got)
		}
	})

	t.Run("missing files are empty not errors", func(t *testing.T) {
		if msgs, err := p.ReadTranscript("nope"); err != nil || msgs != nil {
			t.Errorf("ReadTranscript missing = %v, %v", msgs, err)
		}
		if plan, err := p.ReadPlan("nope"); err != nil || plan != nil {
			t.Errorf("ReadPlan missing = %v, %v", plan, err)
		}
	})
}
