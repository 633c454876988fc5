package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LockFilename is the dependency lock file written next to SKILL.md.
const LockFilename = ".skilllite.lock"

// ResolverKind identifies which resolution layer produced a package list.
type ResolverKind string

const (
	ResolverLock      ResolverKind = "lock"
	ResolverLLM       ResolverKind = "llm"
	ResolverWhitelist ResolverKind = "whitelist"
	ResolverNone      ResolverKind = "none"
)

// LockFile is the on-disk .skilllite.lock shape.
type LockFile struct {
	CompatibilityHash string       `json:"compatibility_hash"`
	Language          Language     `json:"language"`
	ResolvedPackages  []string     `json:"resolved_packages"`
	ResolvedAt        string       `json:"resolved_at"`
	Resolver          ResolverKind `json:"resolver"`
}

// CompatibilityHash is the cache key tying a lock file to the compatibility
// string it was resolved from.
func CompatibilityHash(compatibility string) string {
	sum := sha256.Sum256([]byte(compatibility))
	return hex.EncodeToString(sum[:])
}

// ReadLock loads the lock file from a skill directory. A missing file
// returns (nil, nil).
func ReadLock(dir string) (*LockFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, LockFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &lock, nil
}

// WriteLock persists a resolution result, keyed by the current
// compatibility hash and tagged with the producing resolver layer.
func WriteLock(dir, compatibility string, language Language, packages []string, resolver ResolverKind) error {
	sorted := append([]string(nil), packages...)
	sort.Strings(sorted)

	lock := LockFile{
		CompatibilityHash: CompatibilityHash(compatibility),
		Language:          language,
		ResolvedPackages:  sorted,
		ResolvedAt:        time.Now().UTC().Format(time.RFC3339),
		Resolver:          resolver,
	}
	data, err := json.MarshalIndent(&lock, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, LockFilename), append(data, '\n'), 0o644)
}
