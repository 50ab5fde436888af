// Package cache persists per-file content hashes and built call graphs in
// an embedded SQLite key-value table, so unchanged sources need not be
// re-analyzed. A Store is not safe for concurrent use.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotOpened is returned by operations on a store that is not open.
	ErrNotOpened = errors.New("database not opened")
	// ErrCorruptedCache is returned when a stored graph cannot be rebuilt
	// faithfully.
	ErrCorruptedCache = errors.New("corrupted cache")
)

const (
	filePrefix  = "file:"
	graphPrefix = "graph:"
)

// Store is the cache store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewStore creates a store. Call Open before use.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// NewWithDB wraps an existing connection, already migrated.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	s := NewStore(logger)
	s.db = db
	return s
}

// Open opens (creating if needed) the database at path and runs
// migrations. Use ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := NewStore(logger)
	if err := s.Open(path); err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens a connection to the SQLite database.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// HashContent returns the hex sha256 digest of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsChanged reports whether content differs from the last hash saved for
// path. A path with no saved hash is changed.
func (s *Store) IsChanged(path string, content []byte) (bool, error) {
	stored, ok, err := s.get(filePrefix + path)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return string(stored) != HashContent(content), nil
}

// SaveFileHash records the hash of content for path.
func (s *Store) SaveFileHash(path string, content []byte) error {
	return s.put(filePrefix+path, []byte(HashContent(content)))
}

func (s *Store) get(key string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, ErrNotOpened
	}

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) put(key string, value []byte) error {
	if s.db == nil {
		return ErrNotOpened
	}

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
