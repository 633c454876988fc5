// Package evolution mines execution traces to synthesize planning rules,
// examples, and skills under strict gatekeeping. It runs in its own task
// and communicates with the agent loop only through the decisions store.
package evolution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/skilllite/internal/session"
)

// DecisionRecord is one completed turn, persisted for mining. The agent
// loop is the sole writer to decisions; the evolution engine is the sole
// writer to evolution_log.
type DecisionRecord struct {
	ID              string           `json:"id"`
	Timestamp       time.Time        `json:"timestamp"`
	SessionID       string           `json:"session_id"`
	TotalTools      int              `json:"total_tools"`
	FailedTools     int              `json:"failed_tools"`
	Replans         int              `json:"replans"`
	ElapsedMs       int64            `json:"elapsed_ms"`
	TaskCompleted   bool             `json:"task_completed"`
	Feedback        session.Feedback `json:"feedback"`
	Evolved         bool             `json:"evolved"`
	TaskDescription string           `json:"task_description"`
	ToolsDetail     string           `json:"tools_detail"`
}

// Store is the embedded relational store for decisions and the evolution
// audit log, opened with WAL so the single writer never blocks readers.
type Store struct {
	db *sql.DB
}

// OpenStore initializes the store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open decisions db: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			session_id TEXT NOT NULL,
			total_tools INTEGER DEFAULT 0,
			failed_tools INTEGER DEFAULT 0,
			replans INTEGER DEFAULT 0,
			elapsed_ms INTEGER DEFAULT 0,
			task_completed BOOLEAN DEFAULT 0,
			feedback TEXT DEFAULT 'neutral',
			evolved BOOLEAN DEFAULT 0,
			task_description TEXT,
			tools_detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_evolved ON decisions(evolved)`,
		`CREATE TABLE IF NOT EXISTS rule_triggers (
			rule_id TEXT NOT NULL,
			decision_id TEXT NOT NULL,
			ts DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rule_triggers_rule ON rule_triggers(rule_id, ts)`,
		`CREATE TABLE IF NOT EXISTS evolution_log (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			event TEXT NOT NULL,
			detail TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init evolution schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordDecision persists one completed turn.
func (s *Store) RecordDecision(ctx context.Context, r *DecisionRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, ts, session_id, total_tools, failed_tools, replans,
			elapsed_ms, task_completed, feedback, evolved, task_description, tools_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		r.ID, r.Timestamp, r.SessionID, r.TotalTools, r.FailedTools, r.Replans,
		r.ElapsedMs, r.TaskCompleted, string(r.Feedback), r.TaskDescription, r.ToolsDetail)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecordRuleTrigger notes that a rule matched a decision, feeding the
// effectiveness ladder.
func (s *Store) RecordRuleTrigger(ctx context.Context, ruleID, decisionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rule_triggers (rule_id, decision_id, ts) VALUES (?, ?, ?)`,
		ruleID, decisionID, time.Now().UTC())
	return err
}

// UnprocessedDecisions returns decisions not yet consumed by evolution.
func (s *Store) UnprocessedDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, session_id, total_tools, failed_tools, replans, elapsed_ms,
			task_completed, feedback, evolved, COALESCE(task_description, ''), COALESCE(tools_detail, '')
		FROM decisions WHERE evolved = 0 ORDER BY ts ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var feedback string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.SessionID, &r.TotalTools, &r.FailedTools,
			&r.Replans, &r.ElapsedMs, &r.TaskCompleted, &feedback, &r.Evolved,
			&r.TaskDescription, &r.ToolsDetail); err != nil {
			return nil, err
		}
		r.Feedback = session.Feedback(feedback)
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkEvolved flags the given decisions as consumed.
func (s *Store) MarkEvolved(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE decisions SET evolved = 1 WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LogEvent appends one structured audit row to evolution_log.
func (s *Store) LogEvent(ctx context.Context, event, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evolution_log (id, ts, event, detail) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UTC(), event, detail)
	return err
}

// RuleStats aggregates the trigger outcomes for one rule over a window.
type RuleStats struct {
	Triggers    int
	Successes   int
	SuccessRate float64
}

// RuleStatsSince computes triggers and success rate (completed and not
// negative feedback) for a rule since the cutoff.
func (s *Store) RuleStatsSince(ctx context.Context, ruleID string, since time.Time) (*RuleStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN d.task_completed = 1 AND d.feedback != 'neg' THEN 1 ELSE 0 END), 0)
		FROM rule_triggers t
		JOIN decisions d ON d.id = t.decision_id
		WHERE t.rule_id = ? AND t.ts >= ?`, ruleID, since)

	stats := &RuleStats{}
	if err := row.Scan(&stats.Triggers, &stats.Successes); err != nil {
		return nil, err
	}
	if stats.Triggers > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Triggers)
	}
	return stats, nil
}
