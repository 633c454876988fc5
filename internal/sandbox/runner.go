package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/skilllite/internal/observability"
)

// truncationSentinel is appended when a process is killed before exiting.
const truncationSentinel = "\n[... output truncated: process killed by timeout ...]"

// SpawnResult carries the raw outcome of one sandboxed process.
type SpawnResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner spawns processes under the configured sandbox level with resource
// limits and the policy's filesystem and network grants.
type Runner struct {
	Level  int
	Limits Limits
	Audit  *observability.AuditLogger
	logger *slog.Logger

	// goos overrides runtime.GOOS in tests.
	goos string

	// validatorGated marks the bash-tool path: commands there are gated by
	// the bash validator instead of the OS sandbox, so the level-1 fallback
	// audit event does not apply.
	validatorGated bool
}

// NewShellRunner builds the runner for validator-gated bash-tool commands,
// which run through the system shell rather than the OS sandbox.
func NewShellRunner(limits Limits, audit *observability.AuditLogger) *Runner {
	r := NewRunner(1, limits, audit)
	r.validatorGated = true
	return r
}

// NewRunner builds a runner for the given sandbox level.
func NewRunner(level int, limits Limits, audit *observability.AuditLogger) *Runner {
	return &Runner{
		Level:  level,
		Limits: limits,
		Audit:  audit,
		logger: slog.Default().With("component", "sandbox"),
		goos:   runtime.GOOS,
	}
}

// Spawn runs argv under the sandbox with the given policy. The process is
// killed at the wall-clock deadline; partial output is returned with a
// truncation sentinel. extraPath entries are prepended to PATH.
func (r *Runner) Spawn(ctx context.Context, policy *Policy, argv []string, extraPath []string) (*SpawnResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	if r.Level <= 1 && !r.validatorGated {
		r.logger.Warn("running without OS sandbox", "argv0", argv[0])
		r.Audit.Emit("security_fallback", map[string]any{
			"reason": "sandbox level 1: no OS isolation",
			"argv0":  argv[0],
		})
	}

	wrapped, err := WrapCommand(r.Level, r.goos, policy, argv)
	if err != nil {
		return nil, err
	}
	observability.SandboxSpawns.WithLabelValues(strconv.Itoa(r.Level)).Inc()

	timeout := time.Duration(r.Limits.TimeoutSecs) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, wrapped[0], wrapped[1:]...)
	cmd.Dir = policy.Workspace
	cmd.Env = r.environ(policy, extraPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &SpawnResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stdout += truncationSentinel
		return result, nil
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("spawn %s: %w", wrapped[0], runErr)
	}
	return result, nil
}

// environ builds a minimal child environment: a clean PATH with the
// environment-cache bin dirs prepended, HOME pointed at the scratch dir,
// and the policy paths exported for scripts that consult them.
func (r *Runner) environ(policy *Policy, extraPath []string) []string {
	path := os.Getenv("PATH")
	if len(extraPath) > 0 {
		path = strings.Join(extraPath, string(os.PathListSeparator)) + string(os.PathListSeparator) + path
	}
	env := []string{
		"PATH=" + path,
		"HOME=" + policy.TempDir,
		"TMPDIR=" + policy.TempDir,
		"SKILLLITE_WORKSPACE=" + policy.Workspace,
		"SKILLLITE_OUTPUT_DIR=" + policy.OutputDir,
	}
	if r.Limits.MaxMemoryMB > 0 {
		env = append(env, "SKILLLITE_MAX_MEMORY_MB="+strconv.Itoa(r.Limits.MaxMemoryMB))
	}
	if lang := os.Getenv("LANG"); lang != "" {
		env = append(env, "LANG="+lang)
	}
	return env
}
