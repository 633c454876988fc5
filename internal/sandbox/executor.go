package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/skilllite/internal/config"
	"github.com/haasonsaas/skilllite/internal/observability"
	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Executor dispatches tool calls for loaded skills to the appropriate
// back-end: the bash validator path, the sandbox runner, or an error for
// prompt-only skills. It never trusts the arguments string: schema
// validation runs before any dispatch.
type Executor struct {
	rc      *config.RuntimeContext
	runner  *Runner
	shell   *Runner
	envs    *EnvCache
	scanner *security.Scanner
	audit   *observability.AuditLogger
	logger  *slog.Logger

	// confirmed caches (skill name, content hash) pairs approved by the
	// user for the remainder of the process lifetime.
	mu        sync.Mutex
	confirmed map[string]bool
}

// NewExecutor builds an executor over the runtime context.
func NewExecutor(rc *config.RuntimeContext, limits Limits, audit *observability.AuditLogger) *Executor {
	return &Executor{
		rc:        rc,
		runner:    NewRunner(rc.SandboxLevel, limits, audit),
		shell:     NewShellRunner(limits, audit),
		envs:      NewEnvCache(rc.CacheDir),
		scanner:   security.NewScanner(),
		audit:     audit,
		logger:    slog.Default().With("component", "executor"),
		confirmed: make(map[string]bool),
	}
}

// Execute runs one tool call against a skill and always returns a
// ToolResult; failures are error results, never Go errors, so the model
// sees them and can replan.
func (e *Executor) Execute(ctx context.Context, sk *skill.Skill, def *models.ToolDefinition,
	call models.ToolCall, sink models.EventSink) models.ToolResult {

	args, err := validateArguments(def, call.Arguments)
	if err != nil {
		return models.ErrorResult(call, err.Error())
	}

	switch sk.Kind {
	case skill.KindBashTool:
		return e.executeBashTool(ctx, sk, call, args)
	case skill.KindScript:
		return e.executeScript(ctx, sk, sk.EntryPoint, call, sink)
	case skill.KindMultiScript:
		script, ok := e.scriptForTool(sk, call.Name)
		if !ok {
			return models.ErrorResult(call, fmt.Sprintf("no script in skill %q matches tool %q", sk.Name, call.Name))
		}
		return e.executeScript(ctx, sk, script, call, sink)
	default:
		return models.ErrorResult(call, fmt.Sprintf("skill %q is prompt-only and exposes no executable tool", sk.Name))
	}
}

// validateArguments parses the raw arguments string and validates it
// against the tool's JSON schema.
func validateArguments(def *models.ToolDefinition, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %v", err)
	}
	if def == nil || len(def.Parameters) == 0 {
		return args, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", strings.NewReader(string(def.Parameters))); err != nil {
		return nil, fmt.Errorf("invalid tool schema: %v", err)
	}
	schema, err := compiler.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("invalid tool schema: %v", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("arguments do not match tool schema: %v", err)
	}
	return args, nil
}

// executeBashTool validates and runs a bash-tool command through the
// system shell with PATH augmented by the skill's resolved node_modules
// bins. The model always sees a structured stdout/stderr/exit envelope.
func (e *Executor) executeBashTool(ctx context.Context, sk *skill.Skill, call models.ToolCall, args map[string]any) models.ToolResult {
	command, _ := args["command"].(string)
	if err := ValidateBashCommand(command, sk.AllowedTools); err != nil {
		observability.ToolDispatches.WithLabelValues(call.Name, "rejected").Inc()
		return models.ErrorResult(call, err.Error())
	}
	command = RewriteOutputPaths(command, e.rc.OutputDir)

	envDir, err := e.envs.Ensure(ctx, sk)
	if err != nil {
		return models.ErrorResult(call, fmt.Sprintf("environment setup failed: %v", err))
	}

	tempDir, err := os.MkdirTemp("", "skilllite-bash-*")
	if err != nil {
		return models.ErrorResult(call, fmt.Sprintf("create scratch dir: %v", err))
	}
	defer os.RemoveAll(tempDir)

	policy := e.policyFor(sk, envDir, tempDir)
	result, err := e.shell.Spawn(ctx, policy, []string{"sh", "-c", command}, BinPaths(envDir))
	if err != nil {
		observability.ToolDispatches.WithLabelValues(call.Name, "error").Inc()
		return models.ErrorResult(call, err.Error())
	}
	observability.ToolDispatches.WithLabelValues(call.Name, outcomeLabel(result)).Inc()

	envelope := map[string]any{
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	}
	if result.TimedOut {
		envelope["timed_out"] = true
	}
	data, _ := json.Marshal(envelope)
	return models.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    string(data),
		IsError:    result.ExitCode != 0 || result.TimedOut,
	}
}

// executeScript runs a script skill (or one script of a multi-script
// skill) under the sandbox runner. On level 3 a pre-execution static scan
// gates the spawn: critical findings are hard-blocked, high findings
// require confirmation through the event sink.
func (e *Executor) executeScript(ctx context.Context, sk *skill.Skill, script string,
	call models.ToolCall, sink models.EventSink) models.ToolResult {

	scriptPath, err := ValidatePathUnderRoot(sk.Dir, script)
	if err != nil {
		return models.ErrorResult(call, err.Error())
	}

	if e.rc.SandboxLevel >= config.SandboxLevelScanned {
		if blocked := e.gateOnScan(sk, scriptPath, call, sink); blocked != nil {
			return *blocked
		}
	}

	envDir, err := e.envs.Ensure(ctx, sk)
	if err != nil {
		return models.ErrorResult(call, fmt.Sprintf("environment setup failed: %v", err))
	}

	tempDir, err := os.MkdirTemp("", "skilllite-run-*")
	if err != nil {
		return models.ErrorResult(call, fmt.Sprintf("create scratch dir: %v", err))
	}
	defer os.RemoveAll(tempDir)

	interpreter := Interpreter(envDir, sk.Language)
	if interpreter == "" {
		return models.ErrorResult(call, fmt.Sprintf("no interpreter for language %q", sk.Language))
	}

	policy := e.policyFor(sk, envDir, tempDir)
	argv := []string{interpreter, scriptPath, call.Arguments}
	result, err := e.runner.Spawn(ctx, policy, argv, BinPaths(envDir))
	if err != nil {
		observability.ToolDispatches.WithLabelValues(call.Name, "error").Inc()
		return models.ErrorResult(call, err.Error())
	}
	observability.ToolDispatches.WithLabelValues(call.Name, outcomeLabel(result)).Inc()

	if result.ExitCode != 0 || result.TimedOut {
		content := result.Stdout
		if result.Stderr != "" {
			content += "\n" + result.Stderr
		}
		return models.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Content: content, IsError: true}
	}

	// Stdout is the tool's output. Skills that return JSON must return
	// valid JSON; a parse failure is surfaced as an error result.
	out := strings.TrimSpace(result.Stdout)
	if strings.HasPrefix(out, "{") || strings.HasPrefix(out, "[") {
		if !json.Valid([]byte(out)) {
			return models.ErrorResult(call, "skill returned malformed JSON output")
		}
	}
	return models.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Content: result.Stdout}
}

// gateOnScan runs the level-3 static scan and the confirmation flow.
// Returns a non-nil result when execution must not proceed.
func (e *Executor) gateOnScan(sk *skill.Skill, scriptPath string, call models.ToolCall, sink models.EventSink) *models.ToolResult {
	scan := e.scanner.ScanFile(scriptPath, sk.Language)
	if scan.HasCritical() {
		e.audit.Emit("execution_blocked", map[string]any{
			"skill": sk.Name, "script": scriptPath, "reason": "critical findings",
		})
		r := models.ErrorResult(call, "execution blocked: static scan found critical security issues")
		return &r
	}
	if !scan.HasHighOrCritical() {
		return nil
	}

	data, err := os.ReadFile(scriptPath)
	if err != nil {
		r := models.ErrorResult(call, fmt.Sprintf("read script: %v", err))
		return &r
	}
	cacheKey := sk.Name + "\x00" + security.CodeHash(string(data))

	e.mu.Lock()
	approved := e.confirmed[cacheKey]
	e.mu.Unlock()
	if approved {
		return nil
	}

	prompt := confirmationPrompt(sk.Name, scan)
	if sink == nil || !sink.OnConfirmationRequest(prompt) {
		r := models.ErrorResult(call, "execution declined: user did not confirm flagged skill")
		return &r
	}

	e.mu.Lock()
	e.confirmed[cacheKey] = true
	e.mu.Unlock()
	return nil
}

func confirmationPrompt(name string, scan *security.ScanResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Skill %q has %d high-severity findings:\n", name, len(scan.Findings))
	for i, f := range scan.Findings {
		if i >= 5 {
			fmt.Fprintf(&b, "  ... and %d more\n", len(scan.Findings)-i)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s\n", f.Severity, f.Message)
	}
	b.WriteString("Run anyway?")
	return b.String()
}

func (e *Executor) policyFor(sk *skill.Skill, envDir, tempDir string) *Policy {
	return &Policy{
		SkillDir:  sk.Dir,
		Workspace: e.rc.Workspace,
		OutputDir: e.rc.OutputDir,
		EnvDir:    envDir,
		TempDir:   tempDir,
		Network:   sk.Network,
	}
}

func (e *Executor) scriptForTool(sk *skill.Skill, toolName string) (string, bool) {
	for _, script := range sk.Scripts {
		base := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
		if models.MultiScriptToolName(sk.Name, base) == toolName {
			return script, true
		}
	}
	return "", false
}

func outcomeLabel(result *SpawnResult) string {
	switch {
	case result.TimedOut:
		return "timeout"
	case result.ExitCode != 0:
		return "failed"
	default:
		return "ok"
	}
}
