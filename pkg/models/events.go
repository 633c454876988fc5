package models

// EventSink receives observable events from an agent turn. Implementations
// are provided by the CLI, the MCP bridge, and the agent-RPC stream server.
// All callbacks are invoked from the loop goroutine; OnConfirmationRequest is
// the only one whose return value the loop consumes, and the loop blocks
// until it answers.
type EventSink interface {
	OnTextChunk(text string)
	OnText(text string)
	OnToolCall(name, arguments string)
	OnToolResult(name, content string, isError bool)
	OnConfirmationRequest(prompt string) bool
	OnTaskPlan(plan *TaskPlan)
	OnTaskProgress(id uint32, completed bool)
}

// NopSink discards all events and denies confirmations.
type NopSink struct{}

func (NopSink) OnTextChunk(string) {}
func (NopSink) OnText(string) {}
func (NopSink) OnToolCall(string, string) {}
func (NopSink) OnToolResult(string, string, bool) {}
func (NopSink) OnConfirmationRequest(string) bool { return false }
func (NopSink) OnTaskPlan(*TaskPlan) {}
func (NopSink) OnTaskProgress(uint32, bool) {}

// AutoApproveSink wraps another sink and answers every confirmation request
// affirmatively. Used when SKILLLITE_AUTO_APPROVE is set.
type AutoApproveSink struct {
	EventSink
}

func (s AutoApproveSink) OnConfirmationRequest(string) bool { return true }
