package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// DB wraps the SQLite catalog connection.
type DB struct {
	conn   *sql.DB
	path   string
	driver string
}

// New opens the catalog with the cgo driver.
// If path is empty, uses ~/.filevault/filevault.db
func New(path string) (*DB, error) {
	return Open(DriverCGO, path)
}

// Open opens (and migrates) the catalog at path using the named driver.
func Open(driver, path string) (*DB, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".filevault", "filevault.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn, err := dataSourceName(driver, path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; busy_timeout covers other processes.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func dataSourceName(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", nil
	case DriverPureGo:
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		hash TEXT UNIQUE,
		original_filename TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		storage_key TEXT NOT NULL DEFAULT '',
		reference_count INTEGER NOT NULL DEFAULT 1 CHECK (reference_count >= 0),
		uploaded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_files_file_type ON files(file_type);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT 'New Conversation',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated_at ON chat_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		file_attachments TEXT NOT NULL DEFAULT '[]',
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// ErrNotFound is returned by mutations that address a missing row.
var ErrNotFound = errors.New("not found")

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
