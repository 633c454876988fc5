package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/haasonsaas/skilllite/internal/skill"
)

// EnvCache materializes isolated per-skill environments (Python venvs, Node
// node_modules) under a cache root. Keys are collision-free by construction
// of the hash inputs; an existing directory whose key matches is reused
// unchanged, and concurrent recomputation of the same key is idempotent.
type EnvCache struct {
	root   string
	logger *slog.Logger
}

// NewEnvCache builds a cache rooted at dir.
func NewEnvCache(dir string) *EnvCache {
	return &EnvCache{root: dir, logger: slog.Default().With("component", "env-cache")}
}

// Key derives the cache key from the canonical skill path, language,
// resolved packages, and the raw bytes of the lock, requirements, and
// package.json files.
func (c *EnvCache) Key(sk *skill.Skill) string {
	h := sha256.New()
	canonical, err := filepath.EvalSymlinks(sk.Dir)
	if err != nil {
		canonical = sk.Dir
	}
	h.Write([]byte(canonical))
	h.Write([]byte{0})
	h.Write([]byte(sk.Language))
	for _, pkg := range sk.ResolvedPackages {
		h.Write([]byte{0})
		h.Write([]byte(pkg))
	}
	for _, name := range []string{skill.LockFilename, "requirements.txt", "package.json"} {
		h.Write([]byte{0})
		if data, err := os.ReadFile(filepath.Join(sk.Dir, name)); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Ensure returns the environment directory for the skill, building it via
// the relevant package manager on first use. Skills without dependencies
// yield an empty path and run on the system interpreters.
func (c *EnvCache) Ensure(ctx context.Context, sk *skill.Skill) (string, error) {
	lang := sk.Language
	if lang == skill.LanguageBash {
		// Bash-tool skills may still carry Node deps (package.json).
		if _, err := os.Stat(filepath.Join(sk.Dir, "package.json")); err == nil {
			lang = skill.LanguageNode
		} else {
			return "", nil
		}
	}
	if lang != skill.LanguagePython && lang != skill.LanguageNode {
		return "", nil
	}
	if len(sk.ResolvedPackages) == 0 {
		if _, err := os.Stat(filepath.Join(sk.Dir, "package.json")); err != nil && lang == skill.LanguageNode {
			return "", nil
		}
		if _, err := os.Stat(filepath.Join(sk.Dir, "requirements.txt")); err != nil && lang == skill.LanguagePython {
			return "", nil
		}
	}

	envDir := filepath.Join(c.root, c.Key(sk))
	if ready(envDir, lang) {
		return envDir, nil
	}

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return "", err
	}
	switch lang {
	case skill.LanguagePython:
		return envDir, c.buildPython(ctx, sk, envDir)
	case skill.LanguageNode:
		return envDir, c.buildNode(ctx, sk, envDir)
	}
	return "", nil
}

// BinPaths returns PATH prepend entries for an environment directory.
func BinPaths(envDir string) []string {
	if envDir == "" {
		return nil
	}
	var paths []string
	for _, sub := range []string{filepath.Join("bin"), filepath.Join("Scripts"), filepath.Join("node_modules", ".bin")} {
		dir := filepath.Join(envDir, sub)
		if _, err := os.Stat(dir); err == nil {
			paths = append(paths, dir)
		}
	}
	return paths
}

// Interpreter returns the interpreter to use for the skill's language,
// preferring the cached environment over system binaries.
func Interpreter(envDir string, lang skill.Language) string {
	switch lang {
	case skill.LanguagePython:
		if envDir != "" {
			if runtime.GOOS == "windows" {
				candidate := filepath.Join(envDir, "Scripts", "python.exe")
				if _, err := os.Stat(candidate); err == nil {
					return candidate
				}
			}
			candidate := filepath.Join(envDir, "bin", "python")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return "python3"
	case skill.LanguageNode:
		return "node"
	case skill.LanguageBash:
		return "bash"
	}
	return ""
}

func ready(envDir string, lang skill.Language) bool {
	switch lang {
	case skill.LanguagePython:
		if _, err := os.Stat(filepath.Join(envDir, "bin", "python")); err == nil {
			return true
		}
		_, err := os.Stat(filepath.Join(envDir, "Scripts", "python.exe"))
		return err == nil
	case skill.LanguageNode:
		_, err := os.Stat(filepath.Join(envDir, "node_modules"))
		return err == nil
	}
	return false
}

func (c *EnvCache) buildPython(ctx context.Context, sk *skill.Skill, envDir string) error {
	c.logger.Info("building python environment", "skill", sk.Name)
	if out, err := exec.CommandContext(ctx, "python3", "-m", "venv", envDir).CombinedOutput(); err != nil {
		return fmt.Errorf("create venv: %w: %s", err, out)
	}
	pip := filepath.Join(envDir, "bin", "pip")
	if runtime.GOOS == "windows" {
		pip = filepath.Join(envDir, "Scripts", "pip.exe")
	}
	args := []string{"install", "--no-input"}
	if len(sk.ResolvedPackages) > 0 {
		args = append(args, sk.ResolvedPackages...)
	} else {
		args = append(args, "-r", filepath.Join(sk.Dir, "requirements.txt"))
	}
	if out, err := exec.CommandContext(ctx, pip, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("pip install: %w: %s", err, out)
	}
	return nil
}

func (c *EnvCache) buildNode(ctx context.Context, sk *skill.Skill, envDir string) error {
	c.logger.Info("building node environment", "skill", sk.Name)
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return err
	}
	var cmd *exec.Cmd
	if _, err := os.Stat(filepath.Join(sk.Dir, "package.json")); err == nil {
		if data, err := os.ReadFile(filepath.Join(sk.Dir, "package.json")); err == nil {
			if err := os.WriteFile(filepath.Join(envDir, "package.json"), data, 0o644); err != nil {
				return err
			}
		}
		cmd = exec.CommandContext(ctx, "npm", "install", "--no-audit", "--no-fund")
	} else {
		args := append([]string{"install", "--no-audit", "--no-fund"}, sk.ResolvedPackages...)
		cmd = exec.CommandContext(ctx, "npm", args...)
	}
	cmd.Dir = envDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("npm install: %w: %s", err, out)
	}
	return nil
}
