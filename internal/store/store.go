package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting applied on open. want is the value
// PRAGMA reports back once applied to a file database.
type pragma struct {
	name  string
	value string
	want  string
}

var pragmas = []pragma{
	{name: "journal_mode", value: "WAL", want: "wal"},
	{name: "synchronous", value: "NORMAL", want: "1"},
	{name: "busy_timeout", value: "5000", want: "5000"},
}

// migrations upgrade stores written by older releases. Entry i brings a
// store from user_version i to i+1; schema.sql already holds the result
// of all of them.
var migrations = []func(*sql.Tx) error{
	addLoadsTable,
	addGraphIndex,
}

// Store is a local federation member: quads in one SQLite file. Reads
// go through Match, so a store is a triple source unless wrapped by an
// endpoint.
type Store struct {
	db *sql.DB
}

// Open opens the store at path, creating it if needed. ":memory:" opens
// a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and every connection to
	// ":memory:" would see its own empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.name, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Count returns the number of stored quads.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM triples").Scan(&n); err != nil {
		return 0, fmt.Errorf("count triples: %w", err)
	}
	return n, nil
}

// Summary describes a store's contents.
type Summary struct {
	Triples int64
	Graphs  int64
	Loads   int64
}

// Summarize counts the quads, named graphs and recorded loads.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM triples),
			(SELECT COUNT(DISTINCT g) FROM triples WHERE g != ''),
			(SELECT COUNT(*) FROM loads)`).Scan(&sum.Triples, &sum.Graphs, &sum.Loads)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize store: %w", err)
	}
	return sum, nil
}

// migrate runs the migrations past the store's user_version, each in
// its own transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

func addLoadsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS loads (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			graph  TEXT NOT NULL DEFAULT '',
			count  INTEGER NOT NULL
		)`)
	return err
}

// addGraphIndex serves graph-restricted matches and Graphs.
func addGraphIndex(tx *sql.Tx) error {
	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_triples_g ON triples(g)")
	return err
}

// pragmaValue reads back a connection setting.
func (s *Store) pragmaValue(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
