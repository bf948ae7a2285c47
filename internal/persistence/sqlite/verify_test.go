package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = []string{
	`CREATE TABLE items (id TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`ALTER TABLE items ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
}

func TestOpen_EnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrate_AppliesOnceInOrder(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "m.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, testMigrations[:1]))
	require.NoError(t, Migrate(ctx, db, testMigrations))
	require.NoError(t, Migrate(ctx, db, testMigrations), "re-running must be a no-op")

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 2, version)

	_, err = db.Exec(`INSERT INTO items (id, value, updated_at) VALUES ('a', 'b', 1)`)
	assert.NoError(t, err)
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "n.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, testMigrations))
	assert.Error(t, Migrate(ctx, db, testMigrations[:1]))
}

func TestMigrate_FailedStepKeepsVersion(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "f.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(ctx, db, []string{testMigrations[0], "NOT SQL"})
	require.Error(t, err)

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db, testMigrations))
	require.NoError(t, db.Close())

	for _, mode := range []string{"quick", "full"} {
		issues, err := VerifyIntegrity(path, mode)
		require.NoError(t, err)
		assert.Nil(t, issues, mode)
	}
}
