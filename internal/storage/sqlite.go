package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed record store. Jobs and session blobs share the
// single records table and are told apart by key.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "tweetsweep.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies embedded SQL migrations that have not been recorded yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Records ---

// Scan returns every record ordered by key.
func (s *Store) Scan(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, revision, updated_at FROM records ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, value, revision, updated_at FROM records WHERE key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Create stores value under key only if the key is free.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, revision, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO NOTHING`,
		key, value, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrExists
	}
	return 1, nil
}

// Put overwrites key unconditionally and returns the new revision.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	var rev uint64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO records (key, value, revision, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, revision = records.revision + 1, updated_at = excluded.updated_at
		RETURNING revision`,
		key, value, now(),
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("putting %s: %w", key, err)
	}
	return rev, nil
}

// Update overwrites key only if its current revision equals revision.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET value = ?, revision = revision + 1, updated_at = ?
		WHERE key = ? AND revision = ?`,
		value, now(), key, revision,
	)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, s.missOrConflict(ctx, key)
	}
	return revision + 1, nil
}

// Delete removes key regardless of its revision.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIf removes key only if its current revision equals revision.
func (s *Store) DeleteIf(ctx context.Context, key string, revision uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ? AND revision = ?`, key, revision)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missOrConflict(ctx, key)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, key string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE key = ?`, key).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var updatedAt string
	if err := r.Scan(&e.Key, &e.Value, &e.Revision, &updatedAt); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at for %s: %w", e.Key, err)
	}
	e.UpdatedAt = t
	return e, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
