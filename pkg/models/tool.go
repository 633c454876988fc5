package models

import (
	"encoding/json"
	"strings"
)

// ToolDefinition describes an LLM-facing function: a name, a human
// description, and a JSON-schema parameter object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SanitizeToolName maps an arbitrary skill or script name onto the
// character set providers accept for tool names: lowercased, with
// non-alphanumerics replaced by underscores.
func SanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// MultiScriptToolName returns the registry name for one script of a
// multi-script skill: <skill>__<script>.
func MultiScriptToolName(skill, script string) string {
	return SanitizeToolName(skill) + "__" + SanitizeToolName(script)
}
