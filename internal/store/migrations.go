package store

import (
	"fmt"
	"time"
)

// migration is one forward-only schema step. Its statements run in a
// single transaction together with the bookkeeping row.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{1, "attempts and generations", []string{schemaAttempts, schemaGenerations}},
	{2, "generation token counts", []string{
		`ALTER TABLE generations ADD COLUMN tokens_in INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE generations ADD COLUMN tokens_out INTEGER NOT NULL DEFAULT 0`,
	}},
	{3, "providers tried per generation", []string{
		`ALTER TABLE generations ADD COLUMN providers_tried INTEGER NOT NULL DEFAULT 0`,
	}},
	{4, "generation status index", []string{
		`CREATE INDEX IF NOT EXISTS idx_generations_status ON generations(status, timestamp)`,
	}},
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate() error {
	if _, err := s.writer.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}

	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("store: migration v%d (%s): %w", m.version, m.name, err)
		}
		s.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("schema migration applied")
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 for a fresh
// database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.writer.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) apply(m migration) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}
