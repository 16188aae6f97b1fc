package history

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one schema step, applied in ascending version order and
// tracked in the _migrations table.
type migration struct {
	version     int
	description string
	up          func(tx *sql.Tx) error
}

func migrations() []migration {
	return []migration{
		{
			version:     1,
			description: "create snapshots table",
			up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS snapshots (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						cycle_id TEXT NOT NULL,
						status TEXT NOT NULL,
						auth_required INTEGER NOT NULL DEFAULT 0,
						payloads TEXT NOT NULL,
						errors TEXT NOT NULL DEFAULT '{}',
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_snapshots_status_created ON snapshots(status, created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT    NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	for _, m := range migrations() {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM _migrations WHERE version = ?", m.version,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := m.up(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO _migrations (version, description) VALUES (?, ?)",
		m.version, m.description,
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
