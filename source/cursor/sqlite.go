package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultSQLiteFile is used when no file is configured.
const DefaultSQLiteFile = "ledgerflow_cursor.db"

type SQLiteConfig struct {
	// FilePath of the database. ":memory:" keeps it in memory.
	FilePath string
	Name     string
}

func (c SQLiteConfig) withDefaults() SQLiteConfig {
	if c.FilePath == "" {
		c.FilePath = DefaultSQLiteFile
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	return c
}

// SQLiteStore keeps cursors in a SQLite table, one row per name.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens (and creates) the database in WAL mode.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", cfg.FilePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, name: cfg.Name}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS cursors (
		name TEXT PRIMARY KEY,
		state_version INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (uint64, bool, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT state_version FROM cursors WHERE name = ?`, s.name).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cursor %q: %w", s.name, err)
	}
	return uint64(version), true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, stateVersion uint64) error {
	if stateVersion > math.MaxInt64 {
		return fmt.Errorf("state version %d overflows SQLite INTEGER", stateVersion)
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO cursors (name, state_version, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET state_version = excluded.state_version, updated_at = excluded.updated_at`,
		s.name, int64(stateVersion))
	if err != nil {
		return fmt.Errorf("failed to save cursor %q: %w", s.name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
