package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"text/template"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// Schema version tracking:
// 1 - Events and tags tables
const currentSchemaVersion = 1

var _ eventlog.Log = (*Store)(nil)

// Store is the SQLite event log.
type Store struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
}

// Option configures a Store.
type Option func(*options)

type options struct {
	table string
}

// WithTable sets the events table name (default "tree_events").
func WithTable(name string) Option {
	return func(o *options) { o.table = name }
}

// Open creates or opens a SQLite database at the given path.
// Use ":memory:" for a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - IMMEDIATE transactions, so conditional appends serialize across processes
//
// Open does not create tables; call Setup.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{table: querysql.DefaultTable}
	for _, opt := range opts {
		opt(&o)
	}

	compiler, err := querysql.NewSQLCompiler(o.table)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps ":memory:" databases alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db, compiler: compiler}, nil
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate", path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the events table name.
func (s *Store) Table() string {
	return s.compiler.EventsTable
}

// Setup creates the tables if they don't exist. Idempotent.
func (s *Store) Setup(ctx context.Context) error {
	var buf bytes.Buffer
	err := schemaTemplate.Execute(&buf, map[string]string{
		"Events": s.compiler.EventsTable,
		"Tags":   s.compiler.TagsTable,
	})
	if err != nil {
		return fmt.Errorf("render schema: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := s.db.ExecContext(ctx, buf.String()); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
