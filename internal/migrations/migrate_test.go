package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_index.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000009_dir"), 0o755))

	assert.Equal(t, int64(3), LatestVersion(dir))
}

func TestLatestVersionMissingDir(t *testing.T) {
	assert.Zero(t, LatestVersion(filepath.Join(t.TempDir(), "nope")))
}

func TestShippedMigrations(t *testing.T) {
	assert.Equal(t, int64(2), LatestVersion(filepath.Join("..", "..", "migrations")))
}

func TestRunMigrationsRequiresURL(t *testing.T) {
	assert.Error(t, RunMigrations("", "migrations"))
}
