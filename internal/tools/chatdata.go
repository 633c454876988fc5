package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// ChatHistoryTool renders the persisted transcript. Content-preserving:
// the registry only applies head+tail truncation to its output.
type ChatHistoryTool struct {
	State     *session.State
	Persister *session.Persister
}

func (t *ChatHistoryTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "chat_history",
		Description: "Read earlier messages of this conversation, including turns removed by compaction.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Most recent messages to include; 0 for all"}
			}
		}`),
	}
}

func (t *ChatHistoryTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}

	messages, err := t.Persister.ReadTranscript(t.State.SessionKey)
	if err != nil {
		return "", fmt.Errorf("read transcript: %v", err)
	}
	if len(messages) == 0 {
		messages = t.State.Messages
	}
	if args.Limit > 0 && len(messages) > args.Limit {
		messages = messages[len(messages)-args.Limit:]
	}

	var b strings.Builder
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			var names []string
			for _, c := range m.ToolCalls {
				names = append(names, c.Name)
			}
			content = "[tool calls: " + strings.Join(names, ", ") + "]"
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	if b.Len() == 0 {
		return "no history", nil
	}
	return b.String(), nil
}
