package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		key         TEXT PRIMARY KEY,
		active      INTEGER NOT NULL DEFAULT 0,
		last_update INTEGER NOT NULL DEFAULT 0,
		messages    TEXT NOT NULL DEFAULT '[]',
		touched_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_touched ON sessions(touched_at);

	CREATE TABLE IF NOT EXISTS viewers (
		device_id     TEXT PRIMARY KEY,
		operator_name TEXT NOT NULL,
		operator_id   INTEGER NOT NULL,
		last_seen     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_viewers_operator ON viewers(operator_id);
	CREATE INDEX IF NOT EXISTS idx_viewers_seen ON viewers(last_seen);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

// migrateV2 adds the last_version counter. Rows written before v2 load
// with version 0, which is the safe default: the counter only needs to
// stay ahead of versions it actually issued.
func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil // already at v2+
	}

	// ALTER TABLE sessions ADD COLUMN last_version (ignore if already exists)
	_, _ = s.db.Exec(`ALTER TABLE sessions ADD COLUMN last_version INTEGER DEFAULT 0`)

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
