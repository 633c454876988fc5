package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(dir, "agent1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	t.Run("write and search", func(t *testing.T) {
		if _, err := store.Write(ctx, "agent1", "the deploy key lives in vault", "chat"); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if _, err := store.Write(ctx, "agent1", "user prefers tabs over spaces", "chat"); err != nil {
			t.Fatal(err)
		}
		hits, err := store.Search(ctx, "agent1", "deploy key", 5)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("hits = %d, want 1", len(hits))
		}
		if hits[0].Content != "the deploy key lives in vault" {
			t.Errorf("hit = %q", hits[0].Content)
		}
	})

	t.Run("agent scoping", func(t *testing.T) {
		hits, err := store.Search(ctx, "other-agent", "deploy", 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 0 {
			t.Errorf("cross-agent hits = %d, want 0", len(hits))
		}
	})

	t.Run("list includes notes", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0o644); err != nil {
			t.Fatal(err)
		}
		entries, notes, err := store.List(ctx, "agent1", 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("entries = %d, want 2", len(entries))
		}
		if len(notes) != 1 || notes[0] != "notes.md" {
			t.Errorf("notes = %v", notes)
		}
	})

	t.Run("punctuation in query quoted", func(t *testing.T) {
		if _, err := store.Search(ctx, "agent1", `vault "quoted" token-ish`, 5); err != nil {
			t.Errorf("punctuated query errored: %v", err)
		}
	})
}
