package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/skilllite/internal/memory"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Memory tools expose the FTS5 store to the model.

// MemorySearchTool runs a ranked full-text query.
type MemorySearchTool struct {
	Store   *memory.Store
	AgentID string
}

func (t *MemorySearchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "memory_search",
		Description: "Search stored memories for relevant facts.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"limit": {"type": "integer"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	hits, err := t.Store.Search(ctx, t.AgentID, args.Query, args.Limit)
	if err != nil {
		return "", fmt.Errorf("memory search: %v", err)
	}
	if len(hits) == 0 {
		return "no matching memories", nil
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "- [%s] %s\n", h.CreatedAt.Format("2006-01-02"), h.Content)
	}
	return b.String(), nil
}

// MemoryWriteTool stores one memory.
type MemoryWriteTool struct {
	Store   *memory.Store
	AgentID string
}

func (t *MemoryWriteTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "memory_write",
		Description: "Store a fact worth remembering across sessions.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"content": {"type": "string"},
				"source": {"type": "string"}
			},
			"required": ["content"]
		}`),
	}
}

func (t *MemoryWriteTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Content) == "" {
		return "", fmt.Errorf("content must not be empty")
	}
	id, err := t.Store.Write(ctx, t.AgentID, args.Content, args.Source)
	if err != nil {
		return "", fmt.Errorf("memory write: %v", err)
	}
	return "stored memory " + id, nil
}

// MemoryListTool lists recent memories and note files.
type MemoryListTool struct {
	Store   *memory.Store
	AgentID string
}

func (t *MemoryListTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "memory_list",
		Description: "List recent memories and markdown note files.",
		Parameters: schema(`{
			"type": "object",
			"properties": {"limit": {"type": "integer"}}
		}`),
	}
}

func (t *MemoryListTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	entries, notes, err := t.Store.List(ctx, t.AgentID, args.Limit)
	if err != nil {
		return "", fmt.Errorf("memory list: %v", err)
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s\n", e.CreatedAt.Format("2006-01-02"), e.Content)
	}
	if len(notes) > 0 {
		b.WriteString("notes:\n")
		for _, n := range notes {
			b.WriteString("  " + n + "\n")
		}
	}
	if b.Len() == 0 {
		return "no memories", nil
	}
	return b.String(), nil
}
