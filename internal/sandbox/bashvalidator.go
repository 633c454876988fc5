// Package sandbox spawns skill scripts under OS isolation with resource
// caps and network policy, and validates bash-tool commands before any
// shell is involved.
package sandbox

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/skilllite/internal/skill"
)

// Chain operators whose presence anywhere in a command string is treated as
// an injection attempt.
var chainOperators = []string{";", "&&", "||", "|", "`", "$(", "${", "\n", "\r", ">("}

// Command prefixes that are always blocked regardless of allowed-tools.
var blockedPrefixes = []string{
	"rm", "sudo", "su", "sh", "bash", "zsh", "fish", "dash",
	"curl", "wget",
	"chmod", "chown", "chgrp",
	"mkfs", "dd",
	"kill", "killall", "pkill",
	"reboot", "shutdown", "halt", "poweroff",
	"mount", "umount", "fdisk",
	"nc", "ncat", "netcat", "ssh", "scp", "rsync",
	"eval", "exec", "source", "env", "nohup", "xargs",
	"osascript",
}

// BashValidationError explains why a command was rejected. No subprocess is
// spawned for a rejected command.
type BashValidationError struct {
	msg string
}

func (e *BashValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &BashValidationError{msg: fmt.Sprintf(format, args...)}
}

// ValidateBashCommand checks a raw command string from the model against
// the skill's declared allowed-tools patterns. The checks, in order:
// non-empty after trim, no chain operators, first token not blocklisted
// (including absolute-path variants), and a matching declared prefix.
func ValidateBashCommand(cmd string, allowed []skill.BashToolPattern) error {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return validationErrorf("Empty command")
	}

	for _, op := range chainOperators {
		if strings.Contains(trimmed, op) {
			display := op
			switch op {
			case "\n":
				display = `\n`
			case "\r":
				display = `\r`
			}
			return validationErrorf("Command contains chain operator '%s' — potential injection", display)
		}
	}

	firstWord := trimmed
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		firstWord = trimmed[:idx]
	}
	for _, blocked := range blockedPrefixes {
		if firstWord == blocked {
			return validationErrorf("Command starts with blocked prefix '%s'", blocked)
		}
		// Absolute-path variants: /bin/rm, /usr/bin/sudo, etc.
		if strings.HasPrefix(firstWord, "/") && strings.HasSuffix(firstWord, "/"+blocked) {
			return validationErrorf("Command starts with blocked prefix '%s'", firstWord)
		}
	}

	for _, pattern := range allowed {
		if trimmed == pattern.CommandPrefix || strings.HasPrefix(trimmed, pattern.CommandPrefix+" ") {
			return nil
		}
	}

	var raws []string
	for _, p := range allowed {
		raws = append(raws, p.Raw)
	}
	return validationErrorf("Command '%s' does not match any allowed pattern (allowed: %s)",
		firstWord, strings.Join(raws, ", "))
}
