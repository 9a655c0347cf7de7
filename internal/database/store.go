package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "grantscan.db"

// Dialect is the SQL backend of a Store.
type Dialect string

const (
	// DialectSQLite is the embedded default.
	DialectSQLite Dialect = "sqlite"

	// DialectPostgres is selected by postgres:// and postgresql:// DSNs.
	DialectPostgres Dialect = "postgres"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides SQL storage for opportunities and session reports.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dialect selects placeholders and driver.
	dialect Dialect

	// builder builds statements with the dialect's placeholder format.
	builder sq.StatementBuilderType

	// now stamps created_at and updated_at.
	now func() time.Time
}

// Options configures SQLite behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the SQLite store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return newStore(db, DialectSQLite)
}

// OpenDSN opens a store from a data source name. postgres:// and
// postgresql:// URLs select PostgreSQL; anything else is taken as a
// directory for the SQLite file.
func OpenDSN(ctx context.Context, dsn string) (*Store, error) {
	if DialectFor(dsn) == DialectSQLite {
		return Open(strings.TrimPrefix(dsn, "sqlite://"), DefaultOptions())
	}

	conn, err := pq.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}

	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return newStore(db, DialectPostgres)
}

// DialectFor reports which backend a DSN selects.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// placeholder returns the bind parameter style of the dialect.
func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// newStore wraps db and creates the schema.
func newStore(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
		now:     time.Now,
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Dialect returns the backend of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist. Timestamps are
// RFC 3339 text so the schema is the same on both backends.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS opportunities (
		record_key TEXT PRIMARY KEY,
		upsert_key TEXT NOT NULL,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT '',
		fields TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_source ON opportunities(source);
	CREATE INDEX IF NOT EXISTS idx_opportunities_score ON opportunities(relevance_score);

	CREATE TABLE IF NOT EXISTS session_reports (
		session_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		total_opportunities INTEGER NOT NULL DEFAULT 0,
		relevant_opportunities INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		execution_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_started ON session_reports(started_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// RecordKey derives the fixed-width primary key of an upsert key.
func RecordKey(upsertKey string) string {
	sum := sha3.Sum256([]byte(upsertKey))
	return hex.EncodeToString(sum[:])
}

// storageLayout has fixed-width fractional seconds so stored timestamps
// sort chronologically as text.
const storageLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp encodes a time for storage.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storageLayout)
}

// timestampFormats contains the timestamp formats a row may hold.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses a stored timestamp. Unparseable values give the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
