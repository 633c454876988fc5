package admission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/internal/security"
)

func writeSkillDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const cleanSkillMD = `---
name: clean-skill
description: A harmless skill
compatibility: Requires Python 3.x
entry_point: scripts/main.py
---
Docs.
`

func TestComputeFingerprint(t *testing.T) {
	t.Run("deterministic across runs", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{
			"SKILL.md":        cleanSkillMD,
			"scripts/main.py": "print('hello')\n",
		})
		first, err := ComputeFingerprint(dir)
		if err != nil {
			t.Fatalf("ComputeFingerprint error: %v", err)
		}
		second, err := ComputeFingerprint(dir)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Errorf("fingerprint not deterministic: %s vs %s", first, second)
		}
		if len(first) != 64 {
			t.Errorf("fingerprint length = %d, want 64 hex chars", len(first))
		}
	})

	t.Run("content change changes fingerprint", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		before, _ := ComputeFingerprint(dir)
		if err := os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		after, _ := ComputeFingerprint(dir)
		if before == after {
			t.Error("fingerprint unchanged after adding a file")
		}
	})

	t.Run("ignored directories excluded", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		before, _ := ComputeFingerprint(dir)
		for _, ignored := range []string{".git", "__pycache__", "node_modules"} {
			sub := filepath.Join(dir, ignored)
			if err := os.MkdirAll(sub, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(sub, "junk"), []byte("junk"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		after, _ := ComputeFingerprint(dir)
		if before != after {
			t.Error("ignored directories affected the fingerprint")
		}
	})

	t.Run("signature file excluded", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		before, _ := ComputeFingerprint(dir)
		if _, err := WriteSignature(dir); err != nil {
			t.Fatal(err)
		}
		after, _ := ComputeFingerprint(dir)
		if before != after {
			t.Error("SKILL.sig must not feed the fingerprint it attests to")
		}
	})
}

func TestVerifySignature(t *testing.T) {
	t.Run("absent is unsigned", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		fp, _ := ComputeFingerprint(dir)
		status, err := VerifySignature(dir, fp)
		if err != nil || status != SignatureUnsigned {
			t.Errorf("status = %q err = %v, want UNSIGNED", status, err)
		}
	})

	t.Run("valid round trip", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		fp, err := WriteSignature(dir)
		if err != nil {
			t.Fatal(err)
		}
		status, err := VerifySignature(dir, fp)
		if err != nil || status != SignatureValid {
			t.Errorf("status = %q err = %v, want VALID", status, err)
		}
	})

	t.Run("case insensitive comparison", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		fp, _ := ComputeFingerprint(dir)
		if err := os.WriteFile(filepath.Join(dir, SignatureFilename),
			[]byte(strings.ToUpper(fp)+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		status, _ := VerifySignature(dir, fp)
		if status != SignatureValid {
			t.Errorf("status = %q, want VALID for uppercase signature", status)
		}
	})

	t.Run("mismatch is invalid", func(t *testing.T) {
		dir := writeSkillDir(t, map[string]string{"SKILL.md": cleanSkillMD})
		if err := os.WriteFile(filepath.Join(dir, SignatureFilename),
			[]byte(strings.Repeat("0", 64)), 0o644); err != nil {
			t.Fatal(err)
		}
		fp, _ := ComputeFingerprint(dir)
		status, _ := VerifySignature(dir, fp)
		if status != SignatureInvalid {
			t.Errorf("status = %q, want INVALID", status)
		}
	})
}

// TestAdmitMaliciousPackage covers the colourama hard-block: rejection at
// the malicious-package stage with the documented reason, and no manifest
// entry left behind.
func TestAdmitMaliciousPackage(t *testing.T) {
	skillsDir := t.TempDir()
	dir := writeSkillDir(t, map[string]string{
		"SKILL.md":         cleanSkillMD,
		"scripts/main.py":  "print('hello')\n",
		"requirements.txt": "colourama==0.1.0\n",
	})

	pipeline := NewPipeline(Options{Offline: true})
	_, err := pipeline.Admit(context.Background(), skillsDir, dir)
	if err == nil {
		t.Fatal("expected rejection")
	}
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error type = %T, want RejectionError", err)
	}
	if rejection.Stage != "malicious-package" {
		t.Errorf("stage = %q, want malicious-package", rejection.Stage)
	}
	if !strings.Contains(rejection.Reason, "Typosquat of colorama — documented 2018 malware") {
		t.Errorf("reason = %q", rejection.Reason)
	}

	manifest, err := LoadManifest(skillsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Skills) != 0 {
		t.Errorf("manifest has %d entries after rejection, want 0", len(manifest.Skills))
	}
}

func TestAdmitCleanSkill(t *testing.T) {
	skillsDir := t.TempDir()
	dir := writeSkillDir(t, map[string]string{
		"SKILL.md":        cleanSkillMD,
		"scripts/main.py": "print('hello')\n",
	})

	pipeline := NewPipeline(Options{Offline: true})
	report, err := pipeline.Admit(context.Background(), skillsDir, dir)
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if report.Risk != security.RiskSafe {
		t.Errorf("Risk = %v, want safe", report.Risk)
	}

	// Invariant 3: a manifest entry exists whose hash equals the current
	// fingerprint.
	manifest, err := LoadManifest(skillsDir)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := manifest.Skills[filepath.Base(dir)]
	if !ok {
		t.Fatal("no manifest entry after successful admission")
	}
	current, _ := ComputeFingerprint(dir)
	if entry.Hash != current {
		t.Errorf("manifest hash %s != current fingerprint %s", entry.Hash, current)
	}
}

func TestAdmitSuspiciousSkill(t *testing.T) {
	skillsDir := t.TempDir()
	dir := writeSkillDir(t, map[string]string{
		"SKILL.md":        cleanSkillMD,
		"scripts/main.py": "import subprocess\nsubprocess.run(['ls'])\n",
	})
	pipeline := NewPipeline(Options{Offline: true})
	report, err := pipeline.Admit(context.Background(), skillsDir, dir)
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if report.Risk != security.RiskSuspicious {
		t.Errorf("Risk = %v, want suspicious for subprocess usage", report.Risk)
	}
	if report.Trust.Decision != DecisionRequireConfirm {
		t.Errorf("Decision = %v, want REQUIRE_CONFIRM", report.Trust.Decision)
	}
}

func TestAssessTrust(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		sig      SignatureStatus
		risk     security.Risk
		decision TrustDecision
		tier     TrustTier
	}{
		{"invalid signature denies", "local", SignatureInvalid, security.RiskSafe, DecisionDeny, TierUntrusted},
		{"malicious denies", "local", SignatureValid, security.RiskMalicious, DecisionDeny, TierUntrusted},
		{"unsigned unknown source confirms", "random", SignatureUnsigned, security.RiskSafe, DecisionRequireConfirm, TierUntrusted},
		{"suspicious confirms", "local", SignatureValid, security.RiskSuspicious, DecisionRequireConfirm, TierVerified},
		{"signed known source allows", "local", SignatureValid, security.RiskSafe, DecisionAllow, TierVerified},
		{"unsigned known source allows", "local", SignatureUnsigned, security.RiskSafe, DecisionAllow, TierCommunity},
		{"trusted source signed", "builtin", SignatureValid, security.RiskSafe, DecisionAllow, TierTrusted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessTrust(tt.source, tt.sig, IntegrityOK, false, tt.risk)
			if got.Decision != tt.decision {
				t.Errorf("Decision = %v, want %v", got.Decision, tt.decision)
			}
			if got.Tier != tt.tier {
				t.Errorf("Tier = %v, want %v", got.Tier, tt.tier)
			}
			if got.Score > 100 {
				t.Errorf("Score = %d out of range", got.Score)
			}
		})
	}

	t.Run("malicious package zeroes score", func(t *testing.T) {
		got := AssessTrust("local", SignatureValid, IntegrityOK, true, security.RiskSafe)
		if got.Decision != DecisionDeny || got.Score != 0 {
			t.Errorf("got %+v, want deny with score 0", got)
		}
	})
}
