// Package config loads SkillLite runtime configuration from the process
// environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Sandbox isolation levels. Level 3 is the default: OS isolation plus a
// pre-execution static scan with confirmation on high-severity findings.
const (
	SandboxLevelNone     = 1
	SandboxLevelIsolated = 2
	SandboxLevelScanned  = 3
)

// Config holds all recognized environment settings.
type Config struct {
	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string

	// APIBase overrides the completion endpoint base URL.
	APIBase string

	// Model is the chat model identifier.
	Model string

	// SkillsDir is the directory scanned for installed skills.
	SkillsDir string

	// OutputDir receives artifacts produced by sandboxed commands.
	OutputDir string

	// SandboxLevel selects the isolation tier (1..3).
	SandboxLevel int

	// MaxMemoryMB caps sandboxed process memory.
	MaxMemoryMB int

	// TimeoutSecs caps sandboxed process wall time.
	TimeoutSecs int

	// Quiet suppresses informational logging.
	Quiet bool

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string

	// AuditLog is an optional JSONL file receiving audit events.
	AuditLog string

	// SecurityEventsLog is an optional JSONL file receiving security events.
	SecurityEventsLog string

	// GoalLLMExtract enables the secondary LLM pass for goal boundaries.
	GoalLLMExtract bool

	// AutoApprove answers every confirmation prompt affirmatively.
	AutoApprove bool
}

// Defaults mirrored by the CLI help output.
const (
	DefaultModel       = "gpt-4o"
	DefaultMaxMemoryMB = 512
	DefaultTimeoutSecs = 30
)

// Load reads configuration from the environment, merging in a .env file from
// the current directory when present. Explicit environment variables win
// over .env values.
func Load() *Config {
	_ = godotenv.Load()

	home := ChatHome()
	cfg := &Config{
		APIKey:            os.Getenv("OPENAI_API_KEY"),
		APIBase:           os.Getenv("OPENAI_API_BASE"),
		Model:             envOr("SKILLLITE_MODEL", DefaultModel),
		SkillsDir:         envOr("SKILLLITE_SKILLS_DIR", filepath.Join(home, "skills")),
		OutputDir:         envOr("SKILLLITE_OUTPUT_DIR", filepath.Join(home, "output")),
		SandboxLevel:      envInt("SKILLLITE_SANDBOX_LEVEL", SandboxLevelScanned),
		MaxMemoryMB:       envInt("SKILLLITE_MAX_MEMORY_MB", DefaultMaxMemoryMB),
		TimeoutSecs:       envInt("SKILLLITE_TIMEOUT_SECS", DefaultTimeoutSecs),
		Quiet:             envBool("SKILLLITE_QUIET"),
		LogLevel:          envOr("SKILLLITE_LOG_LEVEL", "info"),
		AuditLog:          os.Getenv("SKILLLITE_AUDIT_LOG"),
		SecurityEventsLog: os.Getenv("SKILLLITE_SECURITY_EVENTS_LOG"),
		GoalLLMExtract:    envBool("SKILLLITE_GOAL_LLM_EXTRACT"),
		AutoApprove:       envBool("SKILLLITE_AUTO_APPROVE"),
	}
	if cfg.SandboxLevel < SandboxLevelNone || cfg.SandboxLevel > SandboxLevelScanned {
		cfg.SandboxLevel = SandboxLevelScanned
	}
	return cfg
}

// ChatHome returns the persistent state root (~/.skilllite/chat).
func ChatHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".skilllite", "chat")
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.MaxMemoryMB <= 0 {
		return fmt.Errorf("max memory must be positive, got %d", c.MaxMemoryMB)
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSecs)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
