package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store persists machine states and properties in SQLite. It is safe for
// concurrent use; writes are serialized on a single connection.
type Store struct {
	db  *sql.DB
	seq atomic.Int64
}

// pragmas are applied to every connection before the schema.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations upgrade a database from user_version i to i+1. The base
// schema is version 0.
var migrations = []struct {
	name string
	sql  string
}{
	{"index state_history by machine", `
		CREATE INDEX IF NOT EXISTS idx_state_history_machine
		ON state_history(machine, seq)`},
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = len(migrations)

// Open opens or creates the database at path, ":memory:" included, and
// brings its schema up to date. Opening an up-to-date database again is a
// no-op apart from resuming the sequence counter.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", p.name, err)
		}
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		return err
	}
	return s.loadSeq()
}

// migrate applies the migrations past the stored user_version.
func (s *Store) migrate() error {
	version, err := s.userVersion()
	if err != nil {
		return err
	}
	for i := version; i < schemaVersion; i++ {
		m := migrations[i]
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", i+1, m.name, err)
		}
	}
	if version != schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *Store) userVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// loadSeq resumes the logical counter after the highest seq on disk.
func (s *Store) loadSeq() error {
	var last sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(seq) FROM (
			SELECT seq FROM machine_states
			UNION ALL SELECT seq FROM properties
			UNION ALL SELECT seq FROM state_history
		)
	`).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to load sequence: %w", err)
	}
	s.seq.Store(last.Int64)
	return nil
}

func (s *Store) nextSeq() int64 {
	return s.seq.Add(1)
}

// Seq returns the last sequence number handed out.
func (s *Store) Seq() int64 {
	return s.seq.Load()
}

// Close closes the database. Closing twice is harmless.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection for read-only queries such as
// scenario assertions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
