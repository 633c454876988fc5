package tools

import "regexp"

// sensitiveAssignment matches values assigned to environment-variable
// looking names for keys, secrets, passwords, and tokens.
var sensitiveAssignment = regexp.MustCompile(
	`(?i)((?:api[_-]?key|secret|password|token|private[_-]?key)[A-Za-z0-9_]*\s*[=:]\s*)(\S+)`)

// RedactSensitive replaces sensitive assigned values in shell output and
// reports whether anything was redacted.
func RedactSensitive(content string) (string, bool) {
	if !sensitiveAssignment.MatchString(content) {
		return content, false
	}
	return sensitiveAssignment.ReplaceAllString(content, "${1}[redacted]"), true
}
