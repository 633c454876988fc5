package skill

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, SkillFilename), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Run("script skill", func(t *testing.T) {
		dir := t.TempDir()
		writeSkill(t, dir, `---
name: chart-maker
description: Renders charts from CSV data
compatibility: Requires Python 3.x with matplotlib
entry_point: scripts/main.py
---

# Chart Maker

Body text.
`)
		sk, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if sk.Name != "chart-maker" {
			t.Errorf("Name = %q, want %q", sk.Name, "chart-maker")
		}
		if sk.Kind != KindScript {
			t.Errorf("Kind = %q, want %q", sk.Kind, KindScript)
		}
		if sk.Language != LanguagePython {
			t.Errorf("Language = %q, want python", sk.Language)
		}
		if !strings.Contains(sk.Content, "Chart Maker") {
			t.Errorf("Content missing body, got %q", sk.Content)
		}
	})

	t.Run("bash tool skill", func(t *testing.T) {
		dir := t.TempDir()
		writeSkill(t, dir, `---
name: agent-browser
description: Drive a browser from the command line
allowed-tools: "Bash(agent-browser:*)"
---
Docs.
`)
		sk, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if sk.Kind != KindBashTool {
			t.Errorf("Kind = %q, want %q", sk.Kind, KindBashTool)
		}
		if len(sk.AllowedTools) != 1 || sk.AllowedTools[0].CommandPrefix != "agent-browser" {
			t.Errorf("AllowedTools = %+v", sk.AllowedTools)
		}
	})

	t.Run("multi script skill", func(t *testing.T) {
		dir := t.TempDir()
		scripts := filepath.Join(dir, "scripts")
		if err := os.MkdirAll(scripts, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"convert.py", "render.py"} {
			if err := os.WriteFile(filepath.Join(scripts, name), []byte("print('x')\n"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		writeSkill(t, dir, `---
name: toolkit
description: Two independent scripts
compatibility: Requires Python 3.x
---
Docs.
`)
		sk, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if sk.Kind != KindMultiScript {
			t.Errorf("Kind = %q, want %q", sk.Kind, KindMultiScript)
		}
		if len(sk.Scripts) != 2 {
			t.Errorf("Scripts = %v, want 2 entries", sk.Scripts)
		}
	})

	t.Run("prompt only skill", func(t *testing.T) {
		dir := t.TempDir()
		writeSkill(t, dir, `---
name: style-guide
description: House style conventions
---
Use the Oxford comma.
`)
		sk, err := Load(dir)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if sk.Kind != KindPromptOnly {
			t.Errorf("Kind = %q, want %q", sk.Kind, KindPromptOnly)
		}
		if sk.Executable() {
			t.Error("prompt-only skill must not be executable")
		}
	})

	t.Run("invalid name rejected", func(t *testing.T) {
		dir := t.TempDir()
		writeSkill(t, dir, `---
name: "Bad Name!"
description: x
---
`)
		if _, err := Load(dir); err == nil {
			t.Fatal("expected error for invalid name")
		}
	})

	t.Run("missing frontmatter rejected", func(t *testing.T) {
		dir := t.TempDir()
		writeSkill(t, dir, "just markdown, no frontmatter\n")
		if _, err := Load(dir); err == nil {
			t.Fatal("expected error for missing frontmatter")
		}
	})
}

func TestSerializeRoundTrip(t *testing.T) {
	original := &Skill{
		Name:          "round-trip",
		Description:   "A skill used to verify serialization",
		Compatibility: "Requires Python 3.x with requests",
		EntryPoint:    "scripts/main.py",
		License:       "MIT",
		Capabilities:  []string{"reports", "charts"},
		Content:       "# Round Trip\n\nBody.",
	}
	dir := t.TempDir()
	parsed, err := Parse([]byte(SerializeFrontMatter(original)), dir)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if parsed.Name != original.Name {
		t.Errorf("Name = %q, want %q", parsed.Name, original.Name)
	}
	if parsed.Description != original.Description {
		t.Errorf("Description = %q, want %q", parsed.Description, original.Description)
	}
	if parsed.Compatibility != original.Compatibility {
		t.Errorf("Compatibility = %q, want %q", parsed.Compatibility, original.Compatibility)
	}
	if parsed.EntryPoint != original.EntryPoint {
		t.Errorf("EntryPoint = %q, want %q", parsed.EntryPoint, original.EntryPoint)
	}
	if len(parsed.Capabilities) != 2 {
		t.Errorf("Capabilities = %v", parsed.Capabilities)
	}
	if parsed.Content != original.Content {
		t.Errorf("Content = %q, want %q", parsed.Content, original.Content)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name       string
		compat     string
		entryPoint string
		scripts    []string
		want       Language
	}{
		{"compat python", "Requires Python 3.x", "", nil, LanguagePython},
		{"compat node", "Requires Node.js 18", "", nil, LanguageNode},
		{"compat shell", "Requires bash", "", nil, LanguageBash},
		{"entry extension", "", "scripts/main.js", nil, LanguageNode},
		{"script extension", "", "", []string{"scripts/run.sh"}, LanguageBash},
		{"nothing known", "", "", nil, LanguageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.compat, tt.entryPoint, tt.scripts); got != tt.want {
				t.Errorf("DetectLanguage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkFromCompatibility(t *testing.T) {
	sk := networkFromCompatibility("Requires Python 3.x, network access")
	if !sk.Enabled {
		t.Error("network keyword should enable outbound")
	}
	off := networkFromCompatibility("Requires git, docker")
	if off.Enabled {
		t.Error("no network keyword should leave outbound disabled")
	}
}
