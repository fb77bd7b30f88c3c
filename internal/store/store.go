package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mreiling/idprov/internal/password"
)

//go:embed schema.sql
var schemaSQL string

// ErrConcurrentModification is returned by Save when the stored subject
// version no longer matches the caller's copy. The conflict is surfaced to
// the caller of the mutation, never retried automatically.
var ErrConcurrentModification = errors.New("subject modified concurrently")

// SealedAttr is the subject attribute encrypted at rest when the store
// has a sealer. Sealed values cannot be searched by FindAll.
const SealedAttr = "password"

// Store is the internal subject store.
type Store struct {
	db     *sql.DB
	sealer *password.Encryptor
}

// Option configures a Store at open time.
type Option func(*Store)

// WithSealer makes the store encrypt SealedAttr values before writing
// and decrypt them on load.
func WithSealer(enc *password.Encryptor) Option {
	return func(s *Store) { s.sealer = enc }
}

// Open creates or opens a SQLite database at the given path. Applies
// required pragmas and the schema; idempotent, safe to call repeatedly.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	// SQLite supports a single writer; keep one connection to avoid
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenMemory opens a throwaway in-memory store, used by tests.
func OpenMemory(opts ...Option) (*Store, error) {
	return Open(":memory:", opts...)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
