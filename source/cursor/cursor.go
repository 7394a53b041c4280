// Package cursor persists how far a transaction source has read, so a
// restarted watcher resumes after the last processed state version.
package cursor

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
)

// Store kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// DefaultName is the cursor name used when none is configured.
const DefaultName = "default"

// Store loads and saves one named cursor. It satisfies observer.CursorSaver.
type Store interface {
	// Load returns the saved state version. ok is false when nothing was
	// saved yet.
	Load(ctx context.Context) (stateVersion uint64, ok bool, err error)
	Save(ctx context.Context, stateVersion uint64) error
	Close() error
}

// Config selects and locates a store. config.Config satisfies it.
type Config interface {
	GetCursorStore() string
	GetSQLiteFile() string
	GetPostgresURL() string
	GetCursorName() string
}

// Open creates the store selected by cfg.GetCursorStore().
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg == nil {
		return nil, errspkg.ErrCursorStoreRequired
	}
	name := cfg.GetCursorName()
	if name == "" {
		name = DefaultName
	}

	switch cfg.GetCursorStore() {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return OpenSQLite(ctx, SQLiteConfig{FilePath: cfg.GetSQLiteFile(), Name: name})
	case KindPostgres:
		return OpenPostgres(ctx, PostgresConfig{ConnectionString: cfg.GetPostgresURL(), Name: name})
	default:
		return nil, fmt.Errorf("unknown cursor store: %q", cfg.GetCursorStore())
	}
}

// ResumeFrom returns the first state version to read: one past the saved
// cursor, or fallback when nothing was saved.
func ResumeFrom(ctx context.Context, store Store, fallback uint64) (uint64, error) {
	if store == nil {
		return fallback, nil
	}
	saved, ok, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if !ok || saved+1 < fallback {
		return fallback, nil
	}
	return saved + 1, nil
}
