// Package store persists attempt telemetry and generation history in a
// local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	busyTimeoutMs = 5000
	readerConns   = 4
)

// Store writes through one serialised connection and reads through a
// small query_only pool, both in WAL mode.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
	}

	writer, err := openPool(path, 1, false)
	if err != nil {
		return nil, fmt.Errorf("store: writer: %w", err)
	}
	reader, err := openPool(path, readerConns, true)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: reader: %w", err)
	}

	s := &Store{writer: writer, reader: reader, path: path, logger: zerolog.Nop()}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openPool(path string, conns int, readOnly bool) (*sql.DB, error) {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs),
		"journal_mode(WAL)",
		"foreign_keys(ON)",
	}
	if readOnly {
		pragmas = append(pragmas, "query_only(ON)")
	}
	dsn := path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases both pools. Later calls return the first call's result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.writer.Close(), s.reader.Close())
	})
	return s.closeErr
}

// SetLogger sets the logger for write failures that Record cannot return.
func (s *Store) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks both pools.
func (s *Store) Ping() error {
	if err := s.writer.Ping(); err != nil {
		return fmt.Errorf("store: writer: %w", err)
	}
	if err := s.reader.Ping(); err != nil {
		return fmt.Errorf("store: reader: %w", err)
	}
	return nil
}

// Prune deletes attempts and generations older than retentionDays and
// returns how many rows went.
func (s *Store) Prune(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := s.writer.Exec(`DELETE FROM attempts WHERE timestamp_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: prune attempts: %w", err)
	}
	attempts, _ := res.RowsAffected()

	res, err = s.writer.Exec(`DELETE FROM generations WHERE timestamp < ?`, cutoff.Format(time.RFC3339))
	if err != nil {
		return attempts, fmt.Errorf("store: prune generations: %w", err)
	}
	generations, _ := res.RowsAffected()
	return attempts + generations, nil
}
