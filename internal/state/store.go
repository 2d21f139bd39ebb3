package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guofeng201507/shark-quant-trader-sub001/internal/risk"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_state (
	portfolio_id  TEXT PRIMARY KEY,
	state_json    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS risk_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	assessment_id TEXT NOT NULL,
	portfolio_id  TEXT NOT NULL,
	as_of         TEXT NOT NULL,
	level         INTEGER NOT NULL,
	drawdown      REAL NOT NULL,
	fail_closed   INTEGER NOT NULL,
	violations    TEXT NOT NULL,
	actions       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_events_portfolio ON risk_events(portfolio_id, as_of);
`

// Store persists the engine's mutable state and an audit trail of
// assessments in SQLite. Single-writer: commits are serialized through the
// caller; readers get last-committed snapshots.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Load restores the persisted risk state for a portfolio. A portfolio with
// no stored state gets the initial level-0 state; a read or decode failure
// returns ErrStateUnavailable wrapped around the cause, and callers must
// fail closed until an operator intervenes.
func (s *Store) Load(portfolioID string, now time.Time) (risk.State, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT state_json FROM risk_state WHERE portfolio_id = ?`, portfolioID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.InitialState(now), nil
	}
	if err != nil {
		return risk.State{}, fmt.Errorf("%w: %v", risk.ErrStateUnavailable, err)
	}

	var st risk.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return risk.State{}, fmt.Errorf("%w: corrupt state: %v", risk.ErrStateUnavailable, err)
	}
	return st, nil
}

// Commit stores the successor state and appends the assessment to the
// audit trail. Writers racing with a fresher evaluation are rejected:
// last-writer-by-timestamp, never last-writer-by-completion.
func (s *Store) Commit(portfolioID string, st risk.State, a *risk.Assessment) error {
	var storedAt string
	err := s.db.QueryRow(
		`SELECT updated_at FROM risk_state WHERE portfolio_id = ?`, portfolioID,
	).Scan(&storedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first commit
	case err != nil:
		return fmt.Errorf("read committed state: %w", err)
	default:
		prev, perr := time.Parse(time.RFC3339Nano, storedAt)
		if perr == nil && !st.UpdatedAt.After(prev) {
			return risk.ErrStaleAssessment
		}
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	violations, err := json.Marshal(a.Violations)
	if err != nil {
		return fmt.Errorf("encode violations: %w", err)
	}
	actions, err := json.Marshal(a.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO risk_state (portfolio_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		portfolioID, string(stateJSON), st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	failClosed := 0
	if a.FailClosed {
		failClosed = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO risk_events
		(assessment_id, portfolio_id, as_of, level, drawdown, fail_closed, violations, actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, portfolioID, a.AsOf.UTC().Format(time.RFC3339Nano),
		int(a.Level), a.PortfolioDrawdown, failClosed,
		string(violations), string(actions),
	); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return tx.Commit()
}

// SaveState upserts the state row without appending to the audit trail.
// Used by operator commands that mutate state outside an evaluation tick;
// the same staleness guard applies.
func (s *Store) SaveState(portfolioID string, st risk.State) error {
	var storedAt string
	err := s.db.QueryRow(
		`SELECT updated_at FROM risk_state WHERE portfolio_id = ?`, portfolioID,
	).Scan(&storedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read committed state: %w", err)
	}
	if err == nil {
		prev, perr := time.Parse(time.RFC3339Nano, storedAt)
		if perr == nil && !st.UpdatedAt.After(prev) {
			return risk.ErrStaleAssessment
		}
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO risk_state (portfolio_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		portfolioID, string(stateJSON), st.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Event is one row of the persisted assessment audit trail.
type Event struct {
	AssessmentID string
	AsOf         time.Time
	Level        risk.Level
	Drawdown     float64
	FailClosed   bool
	Violations   []string
}

// RecentEvents returns the newest events for a portfolio, newest first.
func (s *Store) RecentEvents(portfolioID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT assessment_id, as_of, level, drawdown, fail_closed, violations
		FROM risk_events
		WHERE portfolio_id = ?
		ORDER BY as_of DESC
		LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			asOf       string
			level      int
			failClosed int
			violations string
		)
		if err := rows.Scan(&ev.AssessmentID, &asOf, &level, &ev.Drawdown, &failClosed, &violations); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Level = risk.Level(level)
		ev.FailClosed = failClosed != 0
		if t, err := time.Parse(time.RFC3339Nano, asOf); err == nil {
			ev.AsOf = t
		}
		if err := json.Unmarshal([]byte(violations), &ev.Violations); err != nil {
			ev.Violations = nil
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
