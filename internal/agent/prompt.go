package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// SoulFilename is the optional persona file loaded from the chat home into
// the system prompt preamble.
const SoulFilename = "soul.md"

const basePrompt = `You are SkillLite, an agent that completes tasks in a local workspace
using tools and user-installed skills. Work step by step: plan, act with
tools, observe results, adjust. When the task is done, reply with a final
message and no tool calls. Report file outputs with their full paths.`

// BuildSystemPrompt assembles the initial system message: optional persona,
// base instructions, the skill summaries with schema hints, the task plan,
// and the goal boundary. Full skill documentation is injected lazily on
// first use.
func BuildSystemPrompt(chatHome string, skills map[string]*skill.Skill, plan *models.TaskPlan, goal *GoalBoundary) string {
	var b strings.Builder

	if data, err := os.ReadFile(filepath.Join(chatHome, SoulFilename)); err == nil {
		b.WriteString(strings.TrimSpace(string(data)))
		b.WriteString("\n\n")
	}
	b.WriteString(basePrompt)

	if len(skills) > 0 {
		b.WriteString("\n\nInstalled skills (full docs are provided on first use):\n")
		names := make([]string, 0, len(skills))
		for name := range skills {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sk := skills[name]
			hint := schemaHint(sk)
			fmt.Fprintf(&b, "- %s: %s%s\n", name, sk.Summary(), hint)
		}
	}

	if !plan.Empty() {
		b.WriteString("\n" + plan.Textify())
		b.WriteString("Use update_task_plan to revise the plan and mark tasks completed.\n")
	}
	if !goal.Empty() {
		b.WriteString("\n" + goal.Prompt())
	}
	return b.String()
}

func schemaHint(sk *skill.Skill) string {
	switch sk.Kind {
	case skill.KindBashTool:
		var prefixes []string
		for _, p := range sk.AllowedTools {
			prefixes = append(prefixes, p.CommandPrefix)
		}
		return fmt.Sprintf(" [bash tool: %s]", strings.Join(prefixes, ", "))
	case skill.KindMultiScript:
		return fmt.Sprintf(" [%d scripts]", len(sk.Scripts))
	case skill.KindPromptOnly:
		return " [documentation only]"
	default:
		return ""
	}
}
