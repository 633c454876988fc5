package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// SkillTool adapts one loaded skill (or one script of a multi-script
// skill) into the registry, routing execution through the sandbox
// executor.
type SkillTool struct {
	Skill    *skill.Skill
	Executor *sandbox.Executor

	// toolName is the sanitized registry name; for multi-script skills it
	// is <skill>__<script>.
	toolName string

	// def is the derived tool definition.
	def models.ToolDefinition
}

// SkillTools derives the registry tools for a skill based on its kind.
// Prompt-only skills yield none.
func SkillTools(sk *skill.Skill, executor *sandbox.Executor) []*SkillTool {
	switch sk.Kind {
	case skill.KindScript:
		return []*SkillTool{newSkillTool(sk, executor, models.SanitizeToolName(sk.Name), sk.Description, scriptSchema)}
	case skill.KindBashTool:
		desc := sk.Description
		var prefixes []string
		for _, p := range sk.AllowedTools {
			prefixes = append(prefixes, p.CommandPrefix)
		}
		desc += " Allowed command prefixes: " + strings.Join(prefixes, ", ") + "."
		return []*SkillTool{newSkillTool(sk, executor, models.SanitizeToolName(sk.Name), desc, bashSchema)}
	case skill.KindMultiScript:
		var out []*SkillTool
		for _, script := range sk.Scripts {
			base := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
			name := models.MultiScriptToolName(sk.Name, base)
			desc := fmt.Sprintf("%s (script %s of skill %s)", sk.Description, filepath.Base(script), sk.Name)
			out = append(out, newSkillTool(sk, executor, name, desc, scriptSchema))
		}
		return out
	default:
		return nil
	}
}

var scriptSchema = schema(`{
	"type": "object",
	"properties": {},
	"additionalProperties": true
}`)

var bashSchema = schema(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "The full command line to run"}
	},
	"required": ["command"]
}`)

func newSkillTool(sk *skill.Skill, executor *sandbox.Executor, name, description string, params []byte) *SkillTool {
	return &SkillTool{
		Skill:    sk,
		Executor: executor,
		toolName: name,
		def: models.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func (t *SkillTool) Definition() models.ToolDefinition { return t.def }

func (t *SkillTool) Execute(ctx context.Context, arguments string) (string, error) {
	return t.ExecuteWithSink(ctx, arguments, models.NopSink{})
}

// ExecuteWithSink routes through the sandbox executor, which handles
// validation, scanning, confirmation, and spawning.
func (t *SkillTool) ExecuteWithSink(ctx context.Context, arguments string, sink models.EventSink) (string, error) {
	call := models.ToolCall{Name: t.toolName, Arguments: arguments}
	result := t.Executor.Execute(ctx, t.Skill, &t.def, call, sink)
	if result.IsError {
		return "", fmt.Errorf("%s", result.Content)
	}
	return result.Content, nil
}
