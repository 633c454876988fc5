package skill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	compat := "Requires Python 3.x with requests"
	if err := WriteLock(dir, compat, LanguagePython, []string{"requests"}, ResolverWhitelist); err != nil {
		t.Fatalf("WriteLock error: %v", err)
	}
	lock, err := ReadLock(dir)
	if err != nil {
		t.Fatalf("ReadLock error: %v", err)
	}
	if lock == nil {
		t.Fatal("lock is nil")
	}
	if lock.CompatibilityHash != CompatibilityHash(compat) {
		t.Errorf("hash mismatch: %s", lock.CompatibilityHash)
	}
	if len(lock.ResolvedPackages) != 1 || lock.ResolvedPackages[0] != "requests" {
		t.Errorf("ResolvedPackages = %v, want [requests]", lock.ResolvedPackages)
	}
	if lock.Resolver != ResolverWhitelist {
		t.Errorf("Resolver = %q, want whitelist", lock.Resolver)
	}
}

func TestReadLockMissing(t *testing.T) {
	lock, err := ReadLock(t.TempDir())
	if err != nil {
		t.Fatalf("ReadLock error: %v", err)
	}
	if lock != nil {
		t.Error("missing lock should return nil")
	}
}

// failingExtractor proves the LLM layer is never consulted on a lock hit.
type failingExtractor struct{}

func (failingExtractor) ExtractPackages(context.Context, string, Language) ([]string, error) {
	return nil, errors.New("llm layer must not be called")
}

func TestResolverLockReuse(t *testing.T) {
	dir := t.TempDir()
	compat := "Requires Python 3.x with requests"
	if err := WriteLock(dir, compat, LanguagePython, []string{"requests"}, ResolverLock); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(failingExtractor{}, false)
	result := r.ResolveSync(dir, compat, LanguagePython)
	if result.Resolver != ResolverLock {
		t.Errorf("Resolver = %q, want lock", result.Resolver)
	}
	if len(result.Packages) != 1 || result.Packages[0] != "requests" {
		t.Errorf("Packages = %v, want [requests]", result.Packages)
	}
	if len(result.Unknown) != 0 {
		t.Errorf("Unknown = %v, want empty", result.Unknown)
	}

	// Full pipeline also stops at the lock layer.
	full, err := r.Resolve(context.Background(), dir, compat, LanguagePython)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if full.Resolver != ResolverLock {
		t.Errorf("full Resolver = %q, want lock", full.Resolver)
	}
}

func TestResolverStaleLockFallsThrough(t *testing.T) {
	dir := t.TempDir()
	if err := WriteLock(dir, "old compatibility", LanguagePython, []string{"requests"}, ResolverLock); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(nil, true)
	result := r.ResolveSync(dir, "Requires Python 3.x with pandas", LanguagePython)
	if result.Resolver != ResolverWhitelist {
		t.Errorf("Resolver = %q, want whitelist after stale lock", result.Resolver)
	}
	if len(result.Packages) != 1 || result.Packages[0] != "pandas" {
		t.Errorf("Packages = %v, want [pandas]", result.Packages)
	}
}

func TestMatchWhitelist(t *testing.T) {
	t.Run("direct match", func(t *testing.T) {
		got := MatchWhitelist("Requires Python 3.x with requests and pandas", LanguagePython)
		want := map[string]bool{"requests": true, "pandas": true}
		if len(got) != 2 {
			t.Fatalf("matched %v, want 2 packages", got)
		}
		for _, pkg := range got {
			if !want[pkg] {
				t.Errorf("unexpected package %q", pkg)
			}
		}
	})

	t.Run("alias resolution", func(t *testing.T) {
		got := MatchWhitelist("Requires Python with cv2 and PIL", LanguagePython)
		found := map[string]bool{}
		for _, pkg := range got {
			found[pkg] = true
		}
		if !found["opencv-python"] || !found["pillow"] {
			t.Errorf("aliases not resolved, got %v", got)
		}
	})

	t.Run("word boundaries", func(t *testing.T) {
		// "requestsx" must not match "requests".
		got := MatchWhitelist("uses requestsx only", LanguagePython)
		for _, pkg := range got {
			if pkg == "requests" {
				t.Error("partial token matched requests")
			}
		}
	})

	t.Run("bash has no whitelist", func(t *testing.T) {
		if got := MatchWhitelist("requests", LanguageBash); got != nil {
			t.Errorf("bash whitelist = %v, want nil", got)
		}
	})
}

func TestWriteLockSortsPackages(t *testing.T) {
	dir := t.TempDir()
	if err := WriteLock(dir, "c", LanguagePython, []string{"zlib-ng", "aiohttp"}, ResolverLLM); err != nil {
		t.Fatal(err)
	}
	lock, err := ReadLock(dir)
	if err != nil || lock == nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if lock.ResolvedPackages[0] != "aiohttp" {
		t.Errorf("packages not sorted: %v", lock.ResolvedPackages)
	}
	data, _ := os.ReadFile(filepath.Join(dir, LockFilename))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Error("lock file should end with newline")
	}
}
