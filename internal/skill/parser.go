package skill

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	// FrontmatterDelimiter marks the beginning and end of YAML frontmatter.
	FrontmatterDelimiter = "---"

	maxDescriptionLength   = 1024
	maxCompatibilityLength = 500
)

// frontMatter mirrors the recognized SKILL.md fields.
type frontMatter struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Compatibility string `yaml:"compatibility"`
	EntryPoint    string `yaml:"entry_point"`
	AllowedTools  string `yaml:"allowed-tools"`
	License       string `yaml:"license"`
	Metadata      struct {
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"metadata"`
}

// Load parses the skill rooted at dir, deriving language, kind, network
// policy, and resolved packages.
func Load(dir string) (*Skill, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve skill dir: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(abs, SkillFilename))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SkillFilename, err)
	}
	return Parse(data, abs)
}

// Parse parses SKILL.md content for the skill rooted at dir.
func Parse(data []byte, dir string) (*Skill, error) {
	front, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var fm frontMatter
	if err := yaml.Unmarshal(front, &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if !ValidName(fm.Name) {
		return nil, fmt.Errorf("invalid skill name %q: must match %s and be at most %d chars",
			fm.Name, NamePattern.String(), MaxNameLength)
	}
	if len(fm.Description) > maxDescriptionLength {
		fm.Description = fm.Description[:maxDescriptionLength]
	}
	if len(fm.Compatibility) > maxCompatibilityLength {
		fm.Compatibility = fm.Compatibility[:maxCompatibilityLength]
	}

	s := &Skill{
		Name:          fm.Name,
		Description:   fm.Description,
		Dir:           dir,
		EntryPoint:    fm.EntryPoint,
		Compatibility: fm.Compatibility,
		License:       fm.License,
		Capabilities:  fm.Metadata.Capabilities,
		Content:       strings.TrimSpace(string(body)),
	}

	s.AllowedTools = ParseAllowedTools(fm.AllowedTools)
	s.Network = networkFromCompatibility(fm.Compatibility)
	s.Scripts = listScripts(dir)

	if s.EntryPoint == "" && len(s.AllowedTools) == 0 {
		s.EntryPoint = detectEntryPoint(dir, s.Scripts)
	}

	s.Language = DetectLanguage(s.Compatibility, s.EntryPoint, s.Scripts)
	s.Kind = classify(s)

	if lock, err := ReadLock(dir); err == nil && lock != nil {
		if lock.CompatibilityHash == CompatibilityHash(s.Compatibility) {
			s.ResolvedPackages = lock.ResolvedPackages
		}
	}
	return s, nil
}

// classify computes the execution taxonomy tag.
func classify(s *Skill) Kind {
	switch {
	case len(s.AllowedTools) > 0:
		return KindBashTool
	case s.EntryPoint != "":
		return KindScript
	case len(s.Scripts) >= 2:
		return KindMultiScript
	default:
		return KindPromptOnly
	}
}

// ParseAllowedTools parses a comma-separated list of Bash(prefix:*) patterns.
// Unrecognized entries are dropped.
func ParseAllowedTools(raw string) []BashToolPattern {
	var patterns []BashToolPattern
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "Bash(") || !strings.HasSuffix(part, ")") {
			continue
		}
		inner := part[len("Bash(") : len(part)-1]
		prefix, _, ok := strings.Cut(inner, ":")
		prefix = strings.TrimSpace(prefix)
		if !ok || prefix == "" {
			continue
		}
		patterns = append(patterns, BashToolPattern{CommandPrefix: prefix, Raw: inner})
	}
	return patterns
}

// networkFromCompatibility derives the outbound policy from the free-form
// compatibility hint. Keywords such as "network" or "internet" enable
// unrestricted outbound; everything else stays disabled.
func networkFromCompatibility(compat string) NetworkPolicy {
	lower := strings.ToLower(compat)
	for _, kw := range []string{"network", "internet", "http", "api", "web"} {
		if strings.Contains(lower, kw) {
			return NetworkPolicy{Enabled: true, AllowedHosts: []string{"*"}}
		}
	}
	return NetworkPolicy{}
}

var scriptExtensions = map[string]bool{".py": true, ".js": true, ".ts": true, ".sh": true}

// listScripts returns executable script files under scripts/, relative to
// the skill dir, skipping tests, __init__.py, and hidden files.
func listScripts(dir string) []string {
	entries, err := os.ReadDir(filepath.Join(dir, "scripts"))
	if err != nil {
		return nil
	}
	var scripts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "test_") ||
			strings.HasSuffix(name, "_test.py") || name == "__init__.py" {
			continue
		}
		if scriptExtensions[filepath.Ext(name)] {
			scripts = append(scripts, filepath.Join("scripts", name))
		}
	}
	sort.Strings(scripts)
	return scripts
}

// detectEntryPoint looks for a conventional main/index script, falling back
// to the sole script when exactly one exists.
func detectEntryPoint(dir string, scripts []string) string {
	for _, base := range []string{"main", "index"} {
		for ext := range scriptExtensions {
			candidate := filepath.Join("scripts", base+ext)
			if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
				return candidate
			}
		}
	}
	if len(scripts) == 1 {
		return scripts[0]
	}
	return ""
}

// splitFrontmatter separates YAML frontmatter from the markdown body.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var front []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			closed = true
			break
		}
		front = append(front, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}
	return []byte(strings.Join(front, "\n")), []byte(strings.Join(body, "\n")), nil
}

// SerializeFrontMatter renders a Skill back to SKILL.md text. Used by
// quickstart and by evolution when materializing synthesized skills.
func SerializeFrontMatter(s *Skill) string {
	var b strings.Builder
	b.WriteString(FrontmatterDelimiter + "\n")
	b.WriteString("name: " + s.Name + "\n")
	b.WriteString("description: " + strconvQuoteIfNeeded(s.Description) + "\n")
	if s.Compatibility != "" {
		b.WriteString("compatibility: " + strconvQuoteIfNeeded(s.Compatibility) + "\n")
	}
	if s.EntryPoint != "" {
		b.WriteString("entry_point: " + s.EntryPoint + "\n")
	}
	if len(s.AllowedTools) > 0 {
		var parts []string
		for _, p := range s.AllowedTools {
			parts = append(parts, "Bash("+p.Raw+")")
		}
		b.WriteString("allowed-tools: " + strconvQuoteIfNeeded(strings.Join(parts, ", ")) + "\n")
	}
	if s.License != "" {
		b.WriteString("license: " + s.License + "\n")
	}
	if len(s.Capabilities) > 0 {
		b.WriteString("metadata:\n  capabilities:\n")
		for _, c := range s.Capabilities {
			b.WriteString("    - " + c + "\n")
		}
	}
	b.WriteString(FrontmatterDelimiter + "\n\n")
	b.WriteString(s.Content)
	b.WriteString("\n")
	return b.String()
}

func strconvQuoteIfNeeded(v string) string {
	if strings.ContainsAny(v, ":#{}[]&*!|>'\"%@`") {
		out, _ := yaml.Marshal(v)
		return strings.TrimSpace(string(out))
	}
	return v
}
