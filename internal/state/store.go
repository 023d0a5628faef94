package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cause explains why a switch changed state
type Cause string

const (
	CauseSchedule Cause = "schedule"
	CauseOverride Cause = "override"
	CauseManual   Cause = "manual"
)

// HistoryEntry is one recorded switch state change
type HistoryEntry struct {
	ID        string
	Timestamp time.Time
	Switch    string
	OldState  bool
	NewState  bool
	Cause     Cause
	Schedule  string // set when Cause is schedule
	Input     string // set when Cause is override
}

// Store provides access to persisted switch state and change history
type Store struct {
	db *sql.DB
}

// NewStore creates a store using the provided database connection
func NewStore(db *DB) *Store {
	return &Store{db: db.DB}
}

// ActualStates returns the last confirmed state of every known switch.
func (s *Store) ActualStates() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name, is_on FROM switch_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to read switch states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var name string
		var isOn int
		if err := rows.Scan(&name, &isOn); err != nil {
			return nil, fmt.Errorf("failed to scan switch state: %w", err)
		}
		states[name] = isOn != 0
	}
	return states, rows.Err()
}

// SetActual records the confirmed state of one switch.
func (s *Store) SetActual(name string, on bool, at time.Time) error {
	isOn := 0
	if on {
		isOn = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO switch_state (name, is_on, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			is_on = excluded.is_on,
			updated_at = excluded.updated_at
	`, name, isOn, at.UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to store switch state: %w", err)
	}
	return nil
}

// AppendHistory adds a change entry. An empty ID gets a generated one.
func (s *Store) AppendHistory(e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	oldState, newState := 0, 0
	if e.OldState {
		oldState = 1
	}
	if e.NewState {
		newState = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO switch_events (id, timestamp, switch, old_state, new_state, cause, schedule, input)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Timestamp.UTC().Unix(), e.Switch, oldState, newState, string(e.Cause), nullable(e.Schedule), nullable(e.Input))
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// PruneBefore removes history entries older than cutoff and returns how many
// were deleted.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM switch_events WHERE timestamp < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}

// Recent returns the newest history entries, most recent first.
func (s *Store) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, switch, old_state, new_state, cause, schedule, input
		FROM switch_events
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentFor returns the newest history entries for one switch, most recent first.
func (s *Store) RecentFor(name string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, switch, old_state, new_state, cause, schedule, input
		FROM switch_events
		WHERE switch = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ClearHistory removes all history entries.
func (s *Store) ClearHistory() error {
	_, err := s.db.Exec(`DELETE FROM switch_events`)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts int64
		var oldState, newState int
		var cause string
		var schedule, inputName sql.NullString

		if err := rows.Scan(&e.ID, &ts, &e.Switch, &oldState, &newState, &cause, &schedule, &inputName); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		e.Timestamp = time.Unix(ts, 0).UTC()
		e.OldState = oldState != 0
		e.NewState = newState != 0
		e.Cause = Cause(cause)
		if schedule.Valid {
			e.Schedule = schedule.String
		}
		if inputName.Valid {
			e.Input = inputName.String
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
