package evolution

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteAtomic writes data to target via a temp sibling, fsync, and rename.
// A snapshot of the previous version is retained under _versions/ for
// rollback.
func WriteAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if prev, err := os.ReadFile(target); err == nil {
		versionsDir := filepath.Join(dir, "_versions")
		if err := os.MkdirAll(versionsDir, 0o755); err == nil {
			name := fmt.Sprintf("%s.%s", filepath.Base(target), time.Now().UTC().Format("20060102T150405"))
			_ = os.WriteFile(filepath.Join(versionsDir, name), prev, 0o644)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
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
	return os.Rename(tmp.Name(), target)
}
