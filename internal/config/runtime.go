package config

import (
	"os"
	"path/filepath"
)

// RuntimeContext carries the per-process paths and sandbox level that every
// component receives explicitly. Nothing reads SKILLLITE_OUTPUT_DIR after
// startup; the executor and tool handlers take this struct instead.
type RuntimeContext struct {
	// Workspace is the user project directory tools operate on.
	Workspace string

	// OutputDir receives sandboxed command artifacts.
	OutputDir string

	// CacheDir holds per-skill environment caches.
	CacheDir string

	// SandboxLevel is the isolation tier (1..3).
	SandboxLevel int
}

// NewRuntimeContext derives a RuntimeContext from loaded configuration and a
// workspace path, creating the output and cache directories.
func NewRuntimeContext(cfg *Config, workspace string) (*RuntimeContext, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}
	rc := &RuntimeContext{
		Workspace:    abs,
		OutputDir:    cfg.OutputDir,
		CacheDir:     filepath.Join(ChatHome(), "env-cache"),
		SandboxLevel: cfg.SandboxLevel,
	}
	for _, dir := range []string{rc.OutputDir, rc.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return rc, nil
}
