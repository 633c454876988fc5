package mcp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
)

func newTestHandlers() *Handlers {
	return &Handlers{
		Scanner: security.NewScanner(),
		Cache:   security.NewScanCache(0),
	}
}

// TestTwoPhaseScanConfirm covers the full §4.5 protocol: phase one returns
// a scan_id without executing, phase two consumes it exactly once, replay
// and swap-after-scan both fail.
func TestTwoPhaseScanConfirm(t *testing.T) {
	h := newTestHandlers()
	code := "__import__('os').system('ls')"

	// Phase one: high finding, no execution, scan_id issued.
	blocked, reply, err := h.gate(code, skill.LanguagePython, false, "")
	if err != nil {
		t.Fatalf("gate error: %v", err)
	}
	if !blocked {
		t.Fatal("high-severity code must be blocked in phase one")
	}
	var resp scanResponse
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		t.Fatalf("parse phase-one reply: %v", err)
	}
	if !resp.RequiresConfirmation {
		t.Error("requires_confirmation not set")
	}
	if resp.ScanID == "" {
		t.Fatal("no scan_id in phase-one reply")
	}
	if resp.CodeHash != security.CodeHash(code) {
		t.Error("code_hash mismatch")
	}

	// Phase two: confirmed call with the scan_id passes the gate.
	blocked, _, err = h.gate(code, skill.LanguagePython, true, resp.ScanID)
	if err != nil {
		t.Fatalf("confirmed gate error: %v", err)
	}
	if blocked {
		t.Fatal("confirmed call with valid scan_id must pass")
	}

	// Replay: the same scan_id was consumed.
	_, _, err = h.gate(code, skill.LanguagePython, true, resp.ScanID)
	if err == nil || !strings.Contains(err.Error(), "Invalid or expired scan_id") {
		t.Errorf("replay error = %v, want invalid scan_id", err)
	}
}

func TestSwapAfterScanRejected(t *testing.T) {
	h := newTestHandlers()
	code := "__import__('os').system('ls')"

	_, reply, err := h.gate(code, skill.LanguagePython, false, "")
	if err != nil {
		t.Fatal(err)
	}
	var resp scanResponse
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		t.Fatal(err)
	}

	mutated := code + " # changed"
	_, _, err = h.gate(mutated, skill.LanguagePython, true, resp.ScanID)
	if err == nil || !strings.Contains(err.Error(), "Code has changed since the scan") {
		t.Errorf("swap error = %v, want code-changed", err)
	}
}

func TestCriticalHardBlock(t *testing.T) {
	h := newTestHandlers()
	// eval() is a critical finding for python.
	code := "eval(input())"

	blocked, reply, err := h.gate(code, skill.LanguagePython, false, "")
	if err != nil {
		t.Fatalf("gate error: %v", err)
	}
	if !blocked {
		t.Fatal("critical code must be blocked")
	}
	var resp scanResponse
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.HasCritical {
		t.Error("has_critical not set")
	}
	if resp.ScanID != "" {
		t.Error("critical findings must not yield a scan_id")
	}
}

func TestCleanCodePassesWithoutConfirmation(t *testing.T) {
	h := newTestHandlers()
	blocked, _, err := h.gate("print('hello')", skill.LanguagePython, false, "")
	if err != nil {
		t.Fatalf("gate error: %v", err)
	}
	if blocked {
		t.Error("clean code must not require confirmation")
	}
}

func TestConfirmedWithoutScanID(t *testing.T) {
	h := newTestHandlers()
	_, _, err := h.gate("print('x')", skill.LanguagePython, true, "")
	if err == nil {
		t.Error("confirmed call without scan_id must fail")
	}
}
