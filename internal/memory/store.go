// Package memory provides the FTS5-backed memory store and the markdown
// notes directory exposed to the model through the memory tools.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Entry is one stored memory row.
type Entry struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is one BM25-ranked search result.
type SearchHit struct {
	Entry
	Rank float64 `json:"rank"`
}

// Store persists memories in a per-agent SQLite database with an FTS5
// index, alongside free-form markdown notes in the same directory.
type Store struct {
	db  *sql.DB
	dir string
}

// Open initializes the store under dir for the given agent id.
func Open(dir, agentID string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, agentID+".sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	s := &Store{db: db, dir: dir}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, content='memories', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Write stores one memory and returns its id.
func (s *Store) Write(ctx context.Context, agentID, content, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, agent_id, content, source) VALUES (?, ?, ?, ?)`,
		id, agentID, content, source)
	if err != nil {
		return "", fmt.Errorf("write memory: %w", err)
	}
	return id, nil
}

// Search runs a BM25-ranked full-text query.
func (s *Store) Search(ctx context.Context, agentID, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.agent_id, m.content, COALESCE(m.source, ''), m.created_at, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.agent_id = ?
		ORDER BY rank LIMIT ?`,
		ftsQuery(query), agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.AgentID, &h.Content, &h.Source, &h.CreatedAt, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// List returns recent memories plus the markdown note files in the memory
// directory.
func (s *Store) List(ctx context.Context, agentID string, limit int) ([]Entry, []string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, content, COALESCE(source, ''), created_at
		FROM memories WHERE agent_id = ?
		ORDER BY created_at DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Content, &e.Source, &e.CreatedAt); err != nil {
			return nil, nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var notes []string
	if files, err := os.ReadDir(s.dir); err == nil {
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".md") {
				notes = append(notes, f.Name())
			}
		}
	}
	sort.Strings(notes)
	return entries, notes, nil
}

// ftsQuery quotes each term so user punctuation cannot change FTS syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(terms, " ")
}
