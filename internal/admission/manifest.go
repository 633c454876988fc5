package admission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestEntry records the admitted state of one installed skill, keyed in
// the manifest by the skill directory name.
type ManifestEntry struct {
	Name            string          `json:"name"`
	Source          string          `json:"source"`
	Version         string          `json:"version,omitempty"`
	Hash            string          `json:"hash"`
	SignatureStatus SignatureStatus `json:"signature_status"`
	TrustTier       TrustTier       `json:"trust_tier"`
	TrustScore      uint8           `json:"trust_score"`
	TierReason      []string        `json:"tier_reason,omitempty"`
	InstalledAt     time.Time       `json:"installed_at"`
}

// Manifest is the on-disk .skilllite-manifest.json shape.
type Manifest struct {
	Version int                      `json:"version"`
	Skills  map[string]ManifestEntry `json:"skills"`
}

// ManifestPath returns the manifest location for a skills directory.
func ManifestPath(skillsDir string) string {
	return filepath.Join(skillsDir, ManifestFilename)
}

// LoadManifest reads the manifest, returning an empty one when the file
// does not exist.
func LoadManifest(skillsDir string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(skillsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Version: 1, Skills: map[string]ManifestEntry{}}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Skills == nil {
		m.Skills = map[string]ManifestEntry{}
	}
	return &m, nil
}

// SaveManifest writes the manifest atomically: temp sibling, fsync, rename.
// Readers see either the before or after state, never a torn write.
func SaveManifest(skillsDir string, m *Manifest) error {
	if err := os.MkdirAll(skillsDir, 0o755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := ManifestPath(skillsDir)
	tmp, err := os.CreateTemp(skillsDir, ".manifest-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// UpsertEntry records the entry for a skill directory and persists the
// manifest.
func UpsertEntry(skillsDir, skillDirName string, entry ManifestEntry) error {
	m, err := LoadManifest(skillsDir)
	if err != nil {
		return err
	}
	m.Skills[skillDirName] = entry
	return SaveManifest(skillsDir, m)
}

// RemoveEntry deletes the entry for a skill directory, reporting whether it
// existed.
func RemoveEntry(skillsDir, skillDirName string) (bool, error) {
	m, err := LoadManifest(skillsDir)
	if err != nil {
		return false, err
	}
	if _, ok := m.Skills[skillDirName]; !ok {
		return false, nil
	}
	delete(m.Skills, skillDirName)
	return true, SaveManifest(skillsDir, m)
}
