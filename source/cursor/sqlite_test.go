package cursor

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteConfigDefaults(t *testing.T) {
	cfg := SQLiteConfig{}.withDefaults()
	assert.Equal(t, DefaultSQLiteFile, cfg.FilePath)
	assert.Equal(t, DefaultName, cfg.Name)

	cfg = SQLiteConfig{FilePath: "x.db", Name: "indexer"}.withDefaults()
	assert.Equal(t, "x.db", cfg.FilePath)
	assert.Equal(t, "indexer", cfg.Name)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, SQLiteConfig{FilePath: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, 10))
	require.NoError(t, store.Save(ctx, 11))

	version, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(11), version)

	assert.Error(t, store.Save(ctx, math.MaxUint64))
}

func TestSQLiteStoreNamesAreIndependentAndDurable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursor.db")

	a, err := OpenSQLite(ctx, SQLiteConfig{FilePath: path, Name: "a"})
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx, 100))
	require.NoError(t, a.Close())

	b, err := OpenSQLite(ctx, SQLiteConfig{FilePath: path, Name: "b"})
	require.NoError(t, err)
	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, b.Close())

	reopened, err := OpenSQLite(ctx, SQLiteConfig{FilePath: path, Name: "a"})
	require.NoError(t, err)
	defer reopened.Close()
	version, ok, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), version)
}
