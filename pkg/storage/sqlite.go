// Package storage persists users, agents and distribution plans in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrStoreClosed indicates the underlying database connection is unavailable.
	ErrStoreClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when a unique column (email) is already taken.
	ErrDuplicate = errors.New("storage: duplicate")
)

// connParams apply to every pooled connection, not just the first.
const connParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// Store is the SQLite-backed record of operators, agents and distributions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the database at dsn and brings its schema
// up to date. dsn is a file path, a file: URI or ":memory:".
func New(dsn string) (*Store, error) {
	path, onDisk := diskPath(dsn)
	if onDisk {
		// Password hashes and contact lists live here.
		if err := createPrivateFile(path); err != nil {
			return nil, err
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+connParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if onDisk {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	} else {
		// Every new connection to :memory: would see an empty database.
		db.SetMaxOpenConns(1)
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// diskPath reports the file behind dsn, or false for in-memory and
// non-sqlite DSNs.
func diskPath(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == ":memory:":
		return "", false
	case strings.HasPrefix(dsn, "file:"):
		u, err := url.Parse(dsn)
		if err != nil || strings.EqualFold(u.Query().Get("mode"), "memory") {
			return "", false
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		p = strings.TrimSpace(p)
		if p == "" || p == ":memory:" {
			return "", false
		}
		return p, true
	case strings.Contains(dsn, "://"):
		return "", false
	}
	return dsn, true
}

// createPrivateFile makes path (and its directory) owner-only if it does not
// exist yet. Existing files keep their mode.
func createPrivateFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, os.ErrExist):
		return nil
	default:
		return fmt.Errorf("create database file: %w", err)
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection pool for maintenance queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// GetSchemaVersion returns the highest applied migration.
func (s *Store) GetSchemaVersion() (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreClosed
	}
	return schemaVersion(context.Background(), s.db)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return runInTx(ctx, s.db, fn)
}

func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newID() string {
	return ulid.Make().String()
}

// migration upgrades the schema by one version. Each runs in its own
// transaction together with its schema_migrations row.
type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	// Version 1 is schema.sql itself.
	{1, "initial_schema", func(context.Context, *sql.Tx) error { return nil }},
	{2, "distribution_plan_digest", addPlanDigest},
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := runInTx(ctx, db, func(tx *sql.Tx) error {
			if err := m.up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns lists the lower-cased column names of table.
func tableColumns(ctx context.Context, q queryer, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("inspect %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

// addPlanDigest adds the plan fingerprint column. It is a no-op when the
// column already exists.
func addPlanDigest(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "distributions")
	if err != nil {
		return err
	}
	if cols["plan_digest"] {
		return nil
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE distributions ADD COLUMN plan_digest TEXT NOT NULL DEFAULT ''`)
	return err
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. Older builds only report the primary result code.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
