package store

import (
	"database/sql"
	"fmt"
)

// migration defines a database migration applied after schema creation.
type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the list of all migrations in order, applied on top of the
// base schema in schema.go. Empty today; new sync-shadow columns land here
// rather than rewriting schema.go once a store has shipped.
var migrations = []migration{}

func (s *Store) getSchemaVersion() (int, error) {
	var version int
	err := s.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`, fmt.Sprintf("%d", version))
	return err
}

// runMigrations applies any pending migrations, then stamps the schema to
// SchemaVersion if it was unset (fresh store).
func (s *Store) runMigrations() (int, error) {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	current, err := s.getSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.conn.Exec(m.SQL); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := s.setSchemaVersion(m.Version); err != nil {
			return applied, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		applied++
	}

	if current == 0 {
		if err := s.setSchemaVersion(SchemaVersion); err != nil {
			return applied, err
		}
	}

	return applied, nil
}
