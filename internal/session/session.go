// Package session holds per-conversation state and its persistence:
// sessions.json, the JSONL transcript, and the task-plan snapshot.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/skilllite/pkg/models"
)

// Feedback is the user's verdict on a completed turn.
type Feedback string

const (
	FeedbackPositive Feedback = "pos"
	FeedbackNegative Feedback = "neg"
	FeedbackNeutral  Feedback = "neutral"
)

// ExecutionFeedback accumulates per-turn counters consumed by the decision
// recorder and the evolution engine.
type ExecutionFeedback struct {
	TotalTools  int           `json:"total_tools"`
	FailedTools int           `json:"failed_tools"`
	Replans     int           `json:"replans"`
	Elapsed     time.Duration `json:"elapsed_ms"`
	Completed   bool          `json:"task_completed"`
	Feedback    Feedback      `json:"feedback"`
	ToolsDetail []ToolDetail  `json:"tools_detail,omitempty"`
}

// ToolDetail records one tool invocation for the decision log.
type ToolDetail struct {
	Name    string `json:"name"`
	IsError bool   `json:"is_error"`
}

// State is the per-session mutable state. It is owned exclusively by the
// agent loop for its lifetime and destroyed on /clear.
type State struct {
	SessionID           string
	SessionKey          string
	Workspace           string
	Messages            []models.ChatMessage
	TaskPlan            *models.TaskPlan
	DocumentedSkills    map[string]bool
	ConsecutiveFailures int
	ToolCallsCount      int
	Iterations          int
	Feedback            ExecutionFeedback
}

// New creates a fresh session for a workspace.
func New(workspace string) *State {
	return &State{
		SessionID:        uuid.NewString(),
		SessionKey:       time.Now().UTC().Format("20060102-150405"),
		Workspace:        workspace,
		DocumentedSkills: make(map[string]bool),
		Feedback:         ExecutionFeedback{Feedback: FeedbackNeutral},
	}
}

// Clear resets the transcript and counters, keeping identity and workspace.
func (s *State) Clear() {
	s.Messages = nil
	s.TaskPlan = nil
	s.DocumentedSkills = make(map[string]bool)
	s.ConsecutiveFailures = 0
	s.ToolCallsCount = 0
	s.Iterations = 0
	s.Feedback = ExecutionFeedback{Feedback: FeedbackNeutral}
}

// RecordToolResult updates the failure counters: errors increment the
// consecutive count, any success resets it.
func (s *State) RecordToolResult(result models.ToolResult) {
	s.ToolCallsCount++
	s.Feedback.TotalTools++
	s.Feedback.ToolsDetail = append(s.Feedback.ToolsDetail, ToolDetail{
		Name:    result.ToolName,
		IsError: result.IsError,
	})
	if result.IsError {
		s.ConsecutiveFailures++
		s.Feedback.FailedTools++
	} else {
		s.ConsecutiveFailures = 0
	}
}
