// Package tools provides the unified tool registry: built-in tools run
// in-process, memory tools hit the memory store, and skill tools route
// through the sandbox executor. Every dispatch yields exactly one
// ToolResult with is_error set correctly.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/skilllite/internal/observability"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Tool is one LLM-facing function.
type Tool interface {
	Definition() models.ToolDefinition
	Execute(ctx context.Context, arguments string) (string, error)
}

// SinkTool is implemented by tools that need the event sink (confirmation,
// task-plan events).
type SinkTool interface {
	Tool
	ExecuteWithSink(ctx context.Context, arguments string, sink models.EventSink) (string, error)
}

// contentPreservingTools must never be LLM-summarized; only head+tail
// truncation applies regardless of size.
var contentPreservingTools = map[string]bool{
	"read_file":    true,
	"chat_history": true,
}

// Registry maps tool names to implementations. Registration enforces name
// uniqueness across the active set.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	shaper *Shaper
}

// NewRegistry builds an empty registry with the given result shaper.
func NewRegistry(shaper *Shaper) *Registry {
	return &Registry{tools: make(map[string]Tool), shaper: shaper}
}

// Register adds a tool, rejecting duplicate names.
func (r *Registry) Register(tool Tool) error {
	name := tool.Definition().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool name collision: %q is already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns all tool definitions for the model request.
func (r *Registry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Dispatch executes one tool call and shapes the result. Tool failures
// become error results; they are never Go errors.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall, sink models.EventSink) models.ToolResult {
	tool, ok := r.Get(call.Name)
	if !ok {
		observability.ToolDispatches.WithLabelValues(call.Name, "unknown").Inc()
		return models.ErrorResult(call, "tool not found: "+call.Name)
	}

	var output string
	var err error
	if st, ok := tool.(SinkTool); ok {
		output, err = st.ExecuteWithSink(ctx, call.Arguments, sink)
	} else {
		output, err = tool.Execute(ctx, call.Arguments)
	}
	if err != nil {
		observability.ToolDispatches.WithLabelValues(call.Name, "failed").Inc()
		return models.ErrorResult(call, err.Error())
	}
	observability.ToolDispatches.WithLabelValues(call.Name, "ok").Inc()

	result := models.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Content: output}
	if call.Name == "run_command" {
		content, redacted := RedactSensitive(result.Content)
		result.Content = content
		result.Redacted = redacted
	}
	if r.shaper != nil {
		result.Content = r.shaper.Shape(ctx, call.Name, result.Content, contentPreservingTools[call.Name])
	}
	if result.Redacted {
		result.Content += "\n[notice: values matching sensitive variable names were redacted]"
	}
	return result
}
