package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/skilllite/internal/skill"
)

// Scanner evaluates the compiled rule set over code. Scans are pure given
// the rule set: the same input always yields the same result.
type Scanner struct {
	rules []Rule
}

// NewScanner builds a scanner over the default rule set.
func NewScanner() *Scanner {
	return &Scanner{rules: DefaultRules()}
}

// NewScannerWithRules builds a scanner over a custom rule set.
func NewScannerWithRules(rules []Rule) *Scanner {
	return &Scanner{rules: rules}
}

// ScanCode evaluates all applicable rules over a code snippet.
func (s *Scanner) ScanCode(code string, lang skill.Language) *ScanResult {
	result := &ScanResult{}
	for _, r := range s.rules {
		if !r.AppliesTo(lang) {
			continue
		}
		loc := r.Pattern.FindStringIndex(code)
		if loc == nil {
			continue
		}
		// Patterns may open with a separator character; leading whitespace
		// in the match (a newline included) does not count toward the line.
		start := loc[0]
		for start < loc[1] && strings.ContainsRune(" \t\r\n", rune(code[start])) {
			start++
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:   r.ID,
			Type:     r.Type,
			Severity: r.Severity,
			Message:  r.Message,
			Line:     1 + strings.Count(code[:start], "\n"),
		})
	}
	return result
}

// ScanFile evaluates rules over one script file.
func (s *Scanner) ScanFile(path string, lang skill.Language) *ScanResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ScanResult{Findings: []Finding{{
			RuleID:   "scan-read-error",
			Type:     IssueScanError,
			Severity: SeverityLow,
			Message:  fmt.Sprintf("could not read file: %v", err),
			File:     path,
		}}}
	}
	result := s.ScanCode(string(data), lang)
	for i := range result.Findings {
		result.Findings[i].File = path
	}
	return result
}

// ScanSkill evaluates rules over the skill's entry point and every script
// under scripts/, filtered to language-appropriate extensions and skipping
// tests, __init__.py, and hidden files.
func (s *Scanner) ScanSkill(sk *skill.Skill) *ScanResult {
	result := &ScanResult{}
	exts := make(map[string]bool)
	for _, e := range sk.Language.Extensions() {
		exts[e] = true
	}

	scan := func(rel string) {
		base := filepath.Base(rel)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "test_") || base == "__init__.py" {
			return
		}
		if !exts[filepath.Ext(rel)] {
			return
		}
		fileResult := s.ScanFile(filepath.Join(sk.Dir, rel), sk.Language)
		for i := range fileResult.Findings {
			fileResult.Findings[i].File = rel
		}
		result.Findings = append(result.Findings, fileResult.Findings...)
	}

	if sk.EntryPoint != "" {
		scan(sk.EntryPoint)
	}
	for _, script := range sk.Scripts {
		if script != sk.EntryPoint {
			scan(script)
		}
	}
	return result
}

// RiskFromScan maps scan severity onto the admission risk ladder: critical
// findings mark the skill malicious, high findings mark it suspicious.
func RiskFromScan(result *ScanResult) Risk {
	max, ok := result.HighestSeverity()
	if !ok {
		return RiskSafe
	}
	switch {
	case max == SeverityCritical:
		return RiskMalicious
	case max == SeverityHigh:
		return RiskSuspicious
	}
	return RiskSafe
}
