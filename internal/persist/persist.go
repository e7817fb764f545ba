// Package persist is the reference storage layer for the conflict
// engine: claims and conflicts land in a single SQLite database so
// identical clause sets hit a cache instead of re-paying LLM cost.
// Stored claims are only written; no method reads them back or resumes
// a run. Grounded on the teacher's internal/store
// (SQLiteStore, NewStore(StoreConfig), migrate()) using
// modernc.org/sqlite as the pure-Go driver.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/contractlens/conflictengine/internal/claim"
	"github.com/contractlens/conflictengine/internal/conflict"
)

// Store is the persistence surface the Orchestrator depends on.
type Store interface {
	SaveClaims(ctx context.Context, runID string, claims []claim.Claim) error
	SaveConflicts(ctx context.Context, runID string, conflicts []conflict.Conflict) error
	LookupCachedConflicts(ctx context.Context, clauseSetHash string) ([]conflict.Conflict, bool, error)
	Close() error
}

// StoreConfig configures a SQLiteStore.
type StoreConfig struct {
	DBPath string // ":memory:" for an ephemeral store
}

// SQLiteStore is the modernc.org/sqlite-backed Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewStore opens (creating if necessary) the SQLite database at
// cfg.DBPath and runs migrate to bring its schema up to date.
func NewStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			clause_set_hash TEXT NOT NULL,
			strategy TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_clause_set_hash ON runs(clause_set_hash)`,
		`CREATE TABLE IF NOT EXISTS claims (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			clause_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			action TEXT NOT NULL,
			modality TEXT NOT NULL,
			value_type TEXT NOT NULL,
			normalized_value TEXT,
			topic TEXT NOT NULL,
			source_quote TEXT NOT NULL,
			order_index INTEGER NOT NULL,
			seq_in_clause INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_run_id ON claims(run_id)`,
		`CREATE TABLE IF NOT EXISTS conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			left_clause_id TEXT NOT NULL,
			right_clause_id TEXT NOT NULL,
			classification TEXT NOT NULL,
			conflict_type TEXT,
			severity TEXT NOT NULL,
			materiality TEXT NOT NULL,
			confidence REAL NOT NULL,
			summary TEXT,
			left_evidence TEXT NOT NULL,
			right_evidence TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_run_id ON conflicts(run_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conflicts_pair_per_run ON conflicts(run_id, left_clause_id, right_clause_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

// RecordRun inserts the runs row a run's claims/conflicts hang off of.
// Callers must call this before SaveClaims/SaveConflicts for a new runID.
func (s *SQLiteStore) RecordRun(ctx context.Context, runID, clauseSetHash, strategy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, clause_set_hash, strategy, created_at) VALUES (?, ?, ?, ?)`,
		runID, clauseSetHash, strategy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveClaims(ctx context.Context, runID string, claims []claim.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning claims tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO claims (run_id, clause_id, subject, action, modality, value_type, normalized_value, topic, source_quote, order_index, seq_in_clause)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing claims insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range claims {
		if _, err := stmt.ExecContext(ctx, runID, c.ClauseID, c.Subject, c.Action, string(c.Modality),
			string(c.ValueType), c.NormalizedValue, string(c.Topic), c.SourceQuote, c.OrderIndex, c.SeqInClause); err != nil {
			return fmt.Errorf("inserting claim for clause %s: %w", c.ClauseID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveConflicts(ctx context.Context, runID string, conflicts []conflict.Conflict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning conflicts tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO conflicts
		 (run_id, left_clause_id, right_clause_id, classification, conflict_type, severity, materiality, confidence, summary, left_evidence, right_evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing conflicts insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range conflicts {
		leftJSON, err := json.Marshal(c.LeftEvidence)
		if err != nil {
			return fmt.Errorf("marshaling left evidence: %w", err)
		}
		rightJSON, err := json.Marshal(c.RightEvidence)
		if err != nil {
			return fmt.Errorf("marshaling right evidence: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, c.LeftClauseID, c.RightClauseID, string(c.Classification),
			c.ConflictType, string(c.Severity), string(c.Materiality), c.Confidence, c.Summary,
			string(leftJSON), string(rightJSON), now); err != nil {
			return fmt.Errorf("inserting conflict %s<->%s: %w", c.LeftClauseID, c.RightClauseID, err)
		}
	}
	return tx.Commit()
}

// LookupCachedConflicts finds a prior run whose clause set hashed to
// clauseSetHash and returns its persisted conflicts, enabling the
// Orchestrator's idempotent-run behavior (spec.md §6).
func (s *SQLiteStore) LookupCachedConflicts(ctx context.Context, clauseSetHash string) ([]conflict.Conflict, bool, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE clause_set_hash = ? ORDER BY created_at DESC LIMIT 1`, clauseSetHash,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up run for hash %s: %w", clauseSetHash, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT left_clause_id, right_clause_id, classification, conflict_type, severity, materiality, confidence, summary, left_evidence, right_evidence
		 FROM conflicts WHERE run_id = ?`, runID)
	if err != nil {
		return nil, false, fmt.Errorf("loading cached conflicts for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []conflict.Conflict
	for rows.Next() {
		var c conflict.Conflict
		var leftJSON, rightJSON string
		if err := rows.Scan(&c.LeftClauseID, &c.RightClauseID, &c.Classification, &c.ConflictType,
			&c.Severity, &c.Materiality, &c.Confidence, &c.Summary, &leftJSON, &rightJSON); err != nil {
			return nil, false, fmt.Errorf("scanning cached conflict: %w", err)
		}
		if err := json.Unmarshal([]byte(leftJSON), &c.LeftEvidence); err != nil {
			return nil, false, fmt.Errorf("unmarshaling left evidence: %w", err)
		}
		if err := json.Unmarshal([]byte(rightJSON), &c.RightEvidence); err != nil {
			return nil, false, fmt.Errorf("unmarshaling right evidence: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}
