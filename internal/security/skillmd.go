package security

import "regexp"

// SKILL.md content scan: regex patterns over the instruction text catching
// prompt-injection, exfiltration directives, and credential harvesting
// phrasing. High-severity alerts mark the skill malicious; medium marks it
// suspicious.

type contentPattern struct {
	id       string
	pattern  *regexp.Regexp
	severity Severity
	message  string
}

var contentPatterns = []contentPattern{
	{
		id:       "md-ignore-instructions",
		pattern:  regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions`),
		severity: SeverityHigh,
		message:  "Prompt injection: instruction override directive",
	},
	{
		id:       "md-system-prompt-probe",
		pattern:  regexp.MustCompile(`(?i)(?:reveal|print|show|repeat)\s+(?:your\s+)?system\s+prompt`),
		severity: SeverityHigh,
		message:  "Prompt injection: system prompt disclosure request",
	},
	{
		id:       "md-exfiltrate",
		pattern:  regexp.MustCompile(`(?i)(?:send|post|upload|exfiltrate|transmit)\s+[^\n]{0,60}(?:to|at)\s+https?://`),
		severity: SeverityHigh,
		message:  "Exfiltration directive: instructs sending data to a remote URL",
	},
	{
		id:       "md-credential-harvest",
		pattern:  regexp.MustCompile(`(?i)(?:collect|read|harvest|copy|steal)\s+[^\n]{0,40}(?:api[_\s-]?key|password|token|credential|secret)`),
		severity: SeverityHigh,
		message:  "Credential harvesting phrasing",
	},
	{
		id:       "md-env-dump",
		pattern:  regexp.MustCompile(`(?i)(?:dump|print|echo|cat)\s+[^\n]{0,30}(?:environment|env\s+var|\.env\b|~/\.ssh)`),
		severity: SeverityMedium,
		message:  "Instruction to disclose environment or key material",
	},
	{
		id:       "md-disable-safety",
		pattern:  regexp.MustCompile(`(?i)(?:disable|bypass|skip|turn\s+off)\s+[^\n]{0,30}(?:sandbox|safety|security|validation|scan)`),
		severity: SeverityMedium,
		message:  "Instruction to bypass safety controls",
	},
	{
		id:       "md-hidden-instruction",
		pattern:  regexp.MustCompile(`(?i)do\s+not\s+(?:tell|inform|mention|show)\s+(?:the\s+)?user`),
		severity: SeverityMedium,
		message:  "Hidden-from-user instruction",
	},
}

// ScanSkillContent runs the content patterns over a SKILL.md body.
func ScanSkillContent(content string) *ScanResult {
	result := &ScanResult{}
	for _, p := range contentPatterns {
		if p.pattern.MatchString(content) {
			result.Findings = append(result.Findings, Finding{
				RuleID:   p.id,
				Type:     IssueCodeInjection,
				Severity: p.severity,
				Message:  p.message,
				File:     "SKILL.md",
			})
		}
	}
	return result
}

// RiskFromContent maps SKILL.md findings onto the risk ladder.
func RiskFromContent(result *ScanResult) Risk {
	max, ok := result.HighestSeverity()
	if !ok {
		return RiskSafe
	}
	switch {
	case max >= SeverityHigh:
		return RiskMalicious
	case max == SeverityMedium:
		return RiskSuspicious
	}
	return RiskSafe
}
