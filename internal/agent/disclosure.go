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

// maxReferenceChars truncates each bundled reference file injected during
// progressive disclosure.
const maxReferenceChars = 5000

// DisclosureDoc renders the full documentation for a skill: the SKILL.md
// body plus every file under references/, each truncated.
func DisclosureDoc(sk *skill.Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Full documentation for skill %q:\n\n%s\n", sk.Name, sk.Content)

	refsDir := filepath.Join(sk.Dir, "references")
	entries, err := os.ReadDir(refsDir)
	if err != nil {
		return b.String()
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(refsDir, name))
		if err != nil {
			continue
		}
		text := string(data)
		if len(text) > maxReferenceChars {
			text = text[:maxReferenceChars] + "\n[reference truncated]"
		}
		fmt.Fprintf(&b, "\n--- reference: %s ---\n%s\n", name, text)
	}
	return b.String()
}

// skillForTool maps a dispatched tool name back to its owning skill, for
// the first-use documentation check. Built-in tools return nil.
func skillForTool(skills map[string]*skill.Skill, toolName string) *skill.Skill {
	for _, sk := range skills {
		switch sk.Kind {
		case skill.KindMultiScript:
			prefix := models.SanitizeToolName(sk.Name) + "__"
			if strings.HasPrefix(toolName, prefix) {
				return sk
			}
		default:
			if models.SanitizeToolName(sk.Name) == toolName {
				return sk
			}
		}
	}
	return nil
}
