// Package history persists published snapshots to SQLite so the HTTP API can
// serve recent appliance state across restarts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HerbHall/drivewatch/internal/poller"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store records published snapshots.
type Store struct {
	db *sql.DB
}

// Record is one persisted snapshot row. Payloads are stored as the JSON the
// API served; history reads return them as raw JSON.
type Record struct {
	ID           int64           `json:"id"`
	CycleID      string          `json:"cycle_id"`
	Status       poller.Status   `json:"status"`
	AuthRequired bool            `json:"auth_required"`
	Payloads     json.RawMessage `json:"payloads"`
	Errors       json.RawMessage `json:"errors,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// New opens (or creates) the history database at the given path, applies
// WAL-mode pragmas, and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists one published snapshot.
func (s *Store) Insert(ctx context.Context, snap poller.Snapshot) error {
	payloads, err := json.Marshal(snap.Payloads)
	if err != nil {
		return fmt.Errorf("marshal payloads: %w", err)
	}
	errs, err := json.Marshal(snap.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (cycle_id, status, auth_required, payloads, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.CycleID, string(snap.Status), boolToInt(snap.AuthRequired),
		string(payloads), string(errs), snap.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent record. Returns nil, nil when empty.
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	rows, err := s.list(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, limit)
}

func (s *Store) list(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, status, auth_required, payloads, errors, created_at
		FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var status string
		var authInt int
		var payloads, errs string
		if err := rows.Scan(&r.ID, &r.CycleID, &status, &authInt, &payloads, &errs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		r.Status = poller.Status(status)
		r.AuthRequired = authInt != 0
		r.Payloads = json.RawMessage(payloads)
		r.Errors = json.RawMessage(errs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes records older than the retention period. Returns the number
// of rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
