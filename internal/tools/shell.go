package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/haasonsaas/skilllite/pkg/models"
)

// RunCommandTool executes a shell command in the workspace. Output goes
// through sensitive-value redaction in the registry before the model sees
// it.
type RunCommandTool struct {
	Workspace      string
	DefaultTimeout time.Duration
}

func (t *RunCommandTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "run_command",
		Description: "Run a shell command in the workspace and return stdout, stderr, and the exit code.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"command": {"type": "string"},
				"timeout_secs": {"type": "integer", "description": "Optional per-call timeout"}
			},
			"required": ["command"]
		}`),
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Command     string `json:"command"`
		TimeoutSecs int    `json:"timeout_secs"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	if args.Command == "" {
		return "", fmt.Errorf("command must not be empty")
	}

	timeout := t.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if args.TimeoutSecs > 0 {
		timeout = time.Duration(args.TimeoutSecs) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", args.Command)
	cmd.Dir = t.Workspace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil && runCtx.Err() != context.DeadlineExceeded {
		return "", fmt.Errorf("run command: %v", runErr)
	}

	envelope := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}
	if runCtx.Err() == context.DeadlineExceeded {
		envelope["timed_out"] = true
		envelope["exit_code"] = -1
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	if code, _ := envelope["exit_code"].(int); code != 0 {
		// The envelope is the error text so the model still sees stderr
		// and the exit code while the result is flagged as a failure.
		return "", fmt.Errorf("%s", data)
	}
	return string(data), nil
}
