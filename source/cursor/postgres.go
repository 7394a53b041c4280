package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DefaultSchema holds the cursors table.
const DefaultSchema = "ledgerflow"

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type PostgresConfig struct {
	ConnectionString string
	Name             string
	// SchemaName defaults to "ledgerflow".
	SchemaName string
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.SchemaName == "" {
		c.SchemaName = DefaultSchema
	}
	return c
}

// PostgresStore keeps cursors in <schema>.cursors, one row per name.
type PostgresStore struct {
	db     *sql.DB
	name   string
	schema string
}

// OpenPostgres connects and creates the schema and table if needed.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("PostgreSQL connection string is required")
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	store, err := NewPostgresStore(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore uses an open database handle.
func NewPostgresStore(ctx context.Context, db *sql.DB, cfg PostgresConfig) (*PostgresStore, error) {
	cfg = cfg.withDefaults()
	if !schemaNamePattern.MatchString(cfg.SchemaName) {
		return nil, fmt.Errorf("invalid schema name %q", cfg.SchemaName)
	}

	store := &PostgresStore{db: db, name: cfg.Name, schema: cfg.SchemaName}
	if err := store.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	// #nosec G201 - schema name is validated against schemaNamePattern
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	// #nosec G201 - schema name is validated against schemaNamePattern
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s.cursors (
		name TEXT PRIMARY KEY,
		state_version BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.schema))
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (uint64, bool, error) {
	var version int64
	// #nosec G201 - schema name is validated against schemaNamePattern
	query := fmt.Sprintf(`SELECT state_version FROM %s.cursors WHERE name = $1`, s.schema)
	err := s.db.QueryRowContext(ctx, query, s.name).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cursor %q: %w", s.name, err)
	}
	return uint64(version), true, nil
}

func (s *PostgresStore) Save(ctx context.Context, stateVersion uint64) error {
	if stateVersion > math.MaxInt64 {
		return fmt.Errorf("state version %d overflows BIGINT", stateVersion)
	}
	// #nosec G201 - schema name is validated against schemaNamePattern
	query := fmt.Sprintf(`
	INSERT INTO %s.cursors (name, state_version, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET state_version = EXCLUDED.state_version, updated_at = EXCLUDED.updated_at`, s.schema)
	if _, err := s.db.ExecContext(ctx, query, s.name, int64(stateVersion)); err != nil {
		return fmt.Errorf("failed to save cursor %q: %w", s.name, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
