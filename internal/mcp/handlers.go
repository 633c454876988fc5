package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/skilllite/internal/admission"
	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Handlers implements the five MCP tools: list_skills, get_skill_info,
// run_skill, scan_code, execute_code. Untrusted code execution follows
// the two-phase scan/confirm protocol backed by the one-time scan cache.
type Handlers struct {
	Skills    map[string]*skill.Skill
	SkillsDir string
	Executor  *sandbox.Executor
	Scanner   *security.Scanner
	Cache     *security.ScanCache
	Runner    *sandbox.Runner
	Workspace string
	TempRoot  string
}

// ToolList describes the exposed tools.
func (h *Handlers) ToolList() []map[string]any {
	obj := func(props string) map[string]any {
		var schema map[string]any
		_ = json.Unmarshal([]byte(props), &schema)
		return schema
	}
	return []map[string]any{
		{
			"name":        "list_skills",
			"description": "List installed skills with descriptions and trust tiers.",
			"inputSchema": obj(`{"type": "object", "properties": {}}`),
		},
		{
			"name":        "get_skill_info",
			"description": "Get full metadata and documentation for one skill.",
			"inputSchema": obj(`{"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}`),
		},
		{
			"name":        "run_skill",
			"description": "Run an installed skill. High-severity scan findings require a confirmed second call with the returned scan_id.",
			"inputSchema": obj(`{"type": "object", "properties": {
				"name": {"type": "string"},
				"arguments": {"type": "object"},
				"confirmed": {"type": "boolean"},
				"scan_id": {"type": "string"}
			}, "required": ["name"]}`),
		},
		{
			"name":        "scan_code",
			"description": "Statically scan a code snippet for security issues without running it.",
			"inputSchema": obj(`{"type": "object", "properties": {
				"language": {"type": "string"},
				"code": {"type": "string"}
			}, "required": ["language", "code"]}`),
		},
		{
			"name":        "execute_code",
			"description": "Scan and execute a code snippet in the sandbox. High-severity findings require a confirmed second call with the returned scan_id.",
			"inputSchema": obj(`{"type": "object", "properties": {
				"language": {"type": "string"},
				"code": {"type": "string"},
				"confirmed": {"type": "boolean"},
				"scan_id": {"type": "string"}
			}, "required": ["language", "code"]}`),
		},
	}
}

// CallTool dispatches one tools/call invocation.
func (h *Handlers) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	switch name {
	case "list_skills":
		return h.listSkills()
	case "get_skill_info":
		return h.getSkillInfo(arguments)
	case "run_skill":
		return h.runSkill(ctx, arguments)
	case "scan_code":
		return h.scanCode(arguments)
	case "execute_code":
		return h.executeCode(ctx, arguments)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (h *Handlers) listSkills() (string, error) {
	manifest, err := admission.LoadManifest(h.SkillsDir)
	if err != nil {
		manifest = &admission.Manifest{Skills: map[string]admission.ManifestEntry{}}
	}
	type row struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Kind        string `json:"kind"`
		TrustTier   string `json:"trust_tier,omitempty"`
	}
	var rows []row
	for _, sk := range h.Skills {
		r := row{Name: sk.Name, Description: sk.Description, Kind: string(sk.Kind)}
		if entry, ok := manifest.Skills[filepath.Base(sk.Dir)]; ok {
			r.TrustTier = string(entry.TrustTier)
		}
		rows = append(rows, r)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *Handlers) getSkillInfo(arguments json.RawMessage) (string, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	sk, ok := h.Skills[p.Name]
	if !ok {
		return "", fmt.Errorf("unknown skill: %s", p.Name)
	}
	info := map[string]any{
		"name":          sk.Name,
		"description":   sk.Description,
		"kind":          sk.Kind,
		"language":      sk.Language,
		"entry_point":   sk.EntryPoint,
		"compatibility": sk.Compatibility,
		"network":       sk.Network,
		"capabilities":  sk.Capabilities,
		"documentation": sk.Content,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanResponse is the phase-one reply when confirmation is required.
type scanResponse struct {
	ScanID               string `json:"scan_id,omitempty"`
	CodeHash             string `json:"code_hash"`
	IssuesCount          int    `json:"issues_count"`
	HasCritical          bool   `json:"has_critical"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message,omitempty"`
}

func (h *Handlers) runSkill(ctx context.Context, arguments json.RawMessage) (string, error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Confirmed bool            `json:"confirmed"`
		ScanID    string          `json:"scan_id"`
	}
	if err := json.Unmarshal(arguments, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	sk, ok := h.Skills[p.Name]
	if !ok {
		return "", fmt.Errorf("unknown skill: %s", p.Name)
	}

	// The scan unit for a skill is its entry script content.
	code := ""
	if sk.EntryPoint != "" {
		if data, err := os.ReadFile(filepath.Join(sk.Dir, sk.EntryPoint)); err == nil {
			code = string(data)
		}
	}

	if code != "" {
		if blocked, reply, err := h.gate(code, sk.Language, p.Confirmed, p.ScanID); blocked {
			return reply, err
		}
	}

	toolName := models.SanitizeToolName(sk.Name)
	def := models.ToolDefinition{Name: toolName, Parameters: json.RawMessage(`{"type":"object"}`)}
	call := models.ToolCall{ID: "mcp", Name: toolName, Arguments: string(p.Arguments)}
	result := h.Executor.Execute(ctx, sk, &def, call, models.AutoApproveSink{EventSink: models.NopSink{}})
	if result.IsError {
		return "", fmt.Errorf("%s", result.Content)
	}
	return result.Content, nil
}

func (h *Handlers) scanCode(arguments json.RawMessage) (string, error) {
	var p struct {
		Language string `json:"language"`
		Code     string `json:"code"`
	}
	if err := json.Unmarshal(arguments, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	result := h.Scanner.ScanCode(p.Code, skill.Language(p.Language))
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *Handlers) executeCode(ctx context.Context, arguments json.RawMessage) (string, error) {
	var p struct {
		Language  string `json:"language"`
		Code      string `json:"code"`
		Confirmed bool   `json:"confirmed"`
		ScanID    string `json:"scan_id"`
	}
	if err := json.Unmarshal(arguments, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	lang := skill.Language(p.Language)

	if blocked, reply, err := h.gate(p.Code, lang, p.Confirmed, p.ScanID); blocked {
		return reply, err
	}
	return h.executeSnippet(ctx, p.Code, lang)
}

// gate implements the two-phase protocol. Phase one scans and, when
// high-severity findings are present, returns {scan_id, code_hash, ...}
// without executing; critical findings are hard-blocked and yield no
// scan_id. Phase two validates and consumes the scan_id: it must exist,
// must not be expired, and the code hash must still match.
func (h *Handlers) gate(code string, lang skill.Language, confirmed bool, scanID string) (bool, string, error) {
	if confirmed {
		if scanID == "" {
			return true, "", fmt.Errorf("confirmed call requires scan_id")
		}
		if _, err := h.Cache.Consume(scanID, code); err != nil {
			switch err {
			case security.ErrScanNotFound:
				return true, "", fmt.Errorf("Invalid or expired scan_id")
			case security.ErrCodeChanged:
				return true, "", fmt.Errorf("Code has changed since the scan")
			default:
				return true, "", err
			}
		}
		return false, "", nil
	}

	scan := h.Scanner.ScanCode(code, lang)
	if !scan.HasHighOrCritical() {
		return false, "", nil
	}

	reply := scanResponse{
		CodeHash:    security.CodeHash(code),
		IssuesCount: len(scan.Findings),
		HasCritical: scan.HasCritical(),
	}
	if scan.HasCritical() {
		reply.Message = "execution blocked: critical security findings"
		data, _ := json.MarshalIndent(reply, "", "  ")
		return true, string(data), nil
	}
	reply.ScanID = h.Cache.Put(code, lang, scan)
	reply.RequiresConfirmation = true
	reply.Message = "high-severity findings: re-submit with confirmed=true and this scan_id to execute"
	data, _ := json.MarshalIndent(reply, "", "  ")
	return true, string(data), nil
}

// executeSnippet writes the code to a scratch skill layout and runs it
// under the sandbox runner.
func (h *Handlers) executeSnippet(ctx context.Context, code string, lang skill.Language) (string, error) {
	var ext, interpreter string
	switch lang {
	case skill.LanguagePython:
		ext, interpreter = ".py", "python3"
	case skill.LanguageNode:
		ext, interpreter = ".js", "node"
	case skill.LanguageBash:
		ext, interpreter = ".sh", "bash"
	default:
		return "", fmt.Errorf("unsupported language: %s", lang)
	}

	tempDir, err := os.MkdirTemp(h.TempRoot, "skilllite-exec-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tempDir)

	scriptPath := filepath.Join(tempDir, "snippet"+ext)
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		return "", err
	}

	policy := &sandbox.Policy{
		SkillDir:  tempDir,
		Workspace: h.Workspace,
		OutputDir: h.Workspace,
		TempDir:   tempDir,
	}
	result, err := h.Runner.Spawn(ctx, policy, []string{interpreter, scriptPath}, nil)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 || result.TimedOut {
		out := result.Stdout
		if result.Stderr != "" {
			out += "\n" + result.Stderr
		}
		return "", fmt.Errorf("execution failed (exit %d): %s", result.ExitCode, strings.TrimSpace(out))
	}
	return result.Stdout, nil
}
