package audit

import (
	"fmt"
	"time"
)

const schemaVersion = "1"

// migrate creates the audit tables if they don't exist and seeds metadata.
func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS inputs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			source    TEXT NOT NULL,
			type      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			format    TEXT NOT NULL,
			intent    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS extracted_fields (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			input_id  INTEGER NOT NULL REFERENCES inputs(id),
			agent     TEXT NOT NULL,
			data      TEXT NOT NULL,
			thread_id TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_extracted_fields_input ON extracted_fields(input_id)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 60), err)
		}
	}

	seed := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range seed {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
