package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAtRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	path, err := createAt(dir, "add dupatta length", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260301090000_add_dupatta_length.sql"), path)

	_, err = createAt(dir, "add dupatta length", now)
	require.ErrorContains(t, err, "already exists")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, checkSections(filepath.Base(path), string(body)))
}

func TestMigrationSlug(t *testing.T) {
	require.Equal(t, "add_zari_work", migrationSlug("  Add Zari-Work! "))
	require.Empty(t, migrationSlug("!!!"))
}
