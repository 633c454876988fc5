package sandbox

import (
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/internal/skill"
)

var browserPatterns = []skill.BashToolPattern{
	{CommandPrefix: "agent-browser", Raw: "agent-browser:*"},
}

func TestValidateBashCommand(t *testing.T) {
	t.Run("allowed command passes", func(t *testing.T) {
		if err := ValidateBashCommand("agent-browser open https://example.com", browserPatterns); err != nil {
			t.Errorf("unexpected rejection: %v", err)
		}
	})

	t.Run("chain operator injection rejected", func(t *testing.T) {
		err := ValidateBashCommand("agent-browser open https://x.com; rm -rf /", browserPatterns)
		if err == nil {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(err.Error(), "Command contains chain operator ';'") {
			t.Errorf("error = %q, want chain operator message", err)
		}
	})

	t.Run("every chain operator rejected", func(t *testing.T) {
		for _, cmd := range []string{
			"agent-browser a && b",
			"agent-browser a || b",
			"agent-browser a | b",
			"agent-browser `whoami`",
			"agent-browser $(whoami)",
			"agent-browser ${HOME}",
			"agent-browser a\nrm -rf /",
			"agent-browser a\rrm",
			"agent-browser >(cat)",
		} {
			if err := ValidateBashCommand(cmd, browserPatterns); err == nil {
				t.Errorf("command %q passed validation", cmd)
			}
		}
	})

	t.Run("blocked prefixes rejected", func(t *testing.T) {
		for _, cmd := range []string{"rm -rf tmp", "sudo ls", "curl https://x.com", "env", "xargs ls"} {
			err := ValidateBashCommand(cmd, browserPatterns)
			if err == nil {
				t.Errorf("command %q passed validation", cmd)
				continue
			}
			if !strings.Contains(err.Error(), "blocked prefix") {
				t.Errorf("command %q: error = %q, want blocked prefix", cmd, err)
			}
		}
	})

	t.Run("absolute path variants rejected", func(t *testing.T) {
		for _, cmd := range []string{"/bin/rm -rf tmp", "/usr/bin/sudo ls"} {
			if err := ValidateBashCommand(cmd, browserPatterns); err == nil {
				t.Errorf("command %q passed validation", cmd)
			}
		}
	})

	t.Run("unmatched prefix rejected", func(t *testing.T) {
		err := ValidateBashCommand("other-tool run", browserPatterns)
		if err == nil {
			t.Fatal("expected rejection")
		}
		if !strings.Contains(err.Error(), "does not match any allowed pattern") {
			t.Errorf("error = %q", err)
		}
	})

	t.Run("prefix must be a whole token", func(t *testing.T) {
		if err := ValidateBashCommand("agent-browserx run", browserPatterns); err == nil {
			t.Error("prefix with suffix characters passed validation")
		}
	})

	t.Run("empty command rejected", func(t *testing.T) {
		for _, cmd := range []string{"", "   ", "\t"} {
			if err := ValidateBashCommand(cmd, browserPatterns); err == nil {
				t.Errorf("command %q passed validation", cmd)
			}
		}
	})
}

// TestValidatedCommandInvariant checks the §8 invariant: a passing command
// contains no chain characters and its first token is not blocklisted.
func TestValidatedCommandInvariant(t *testing.T) {
	commands := []string{
		"agent-browser open https://example.com",
		"agent-browser screenshot page.png",
		"agent-browser click selector",
	}
	for _, cmd := range commands {
		if err := ValidateBashCommand(cmd, browserPatterns); err != nil {
			t.Fatalf("setup: %q rejected: %v", cmd, err)
		}
		for _, op := range chainOperators {
			if strings.Contains(cmd, op) {
				t.Errorf("validated command %q contains operator %q", cmd, op)
			}
		}
		first := strings.Fields(cmd)[0]
		for _, blocked := range blockedPrefixes {
			if first == blocked {
				t.Errorf("validated command %q starts with blocked prefix", cmd)
			}
		}
	}
}

func TestRewriteOutputPaths(t *testing.T) {
	out := "/srv/output"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare filename rewritten", "agent-browser screenshot page.png", "agent-browser screenshot /srv/output/page.png"},
		{"absolute path untouched", "agent-browser screenshot /tmp/page.png", "agent-browser screenshot /tmp/page.png"},
		{"env var untouched", "agent-browser screenshot $OUT/page.png", "agent-browser screenshot $OUT/page.png"},
		{"url untouched", "agent-browser open https://x.com/page.html", "agent-browser open https://x.com/page.html"},
		{"no output extension untouched", "agent-browser open page", "agent-browser open page"},
		{"single token untouched", "report.pdf", "report.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RewriteOutputPaths(tt.in, out); got != tt.want {
				t.Errorf("RewriteOutputPaths(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidatePathUnderRoot(t *testing.T) {
	root := t.TempDir()

	t.Run("relative path resolves", func(t *testing.T) {
		got, err := ValidatePathUnderRoot(root, "sub/file.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(got, root) {
			t.Errorf("resolved path %q not under root", got)
		}
	})

	t.Run("traversal rejected", func(t *testing.T) {
		if _, err := ValidatePathUnderRoot(root, "../escape.txt"); err == nil {
			t.Error("expected path escape error")
		}
		if _, err := ValidatePathUnderRoot(root, "sub/../../escape.txt"); err == nil {
			t.Error("expected path escape error for nested traversal")
		}
	})

	t.Run("null byte rejected", func(t *testing.T) {
		if _, err := ValidatePathUnderRoot(root, "a\x00b"); err == nil {
			t.Error("expected error for null byte")
		}
	})
}
