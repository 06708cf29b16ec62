package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sareehub-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestVariantsMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_variants")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS variants",
		"CHECK (stock_quantity >= 0)",
		"DROP TABLE IF EXISTS variants",
	} {
		require.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestInventoryMigrationIndexesOutstandingLookup(t *testing.T) {
	content := readMigration(t, "create_inventory")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS inventory",
		"ON inventory (variant_id, order_id, type)",
		"CHECK (type IN ('reserve','sale','return','adjustment'))",
		"DROP TABLE IF EXISTS inventory",
	} {
		require.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestOrdersMigrationConstrainsStatuses(t *testing.T) {
	content := readMigration(t, "create_orders")
	for _, sub := range []string{
		"'pending','confirmed','shipped','delivered','cancelled'",
		"CHECK (payment_status IN ('pending','paid','failed'))",
		"ON orders (status, payment_status)",
	} {
		require.True(t, strings.Contains(content, sub), "missing %q", sub)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Saree Fabric")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_saree_fabric.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	require.NoError(t, migrate.ValidateFS(migrate.Embedded()))

	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}

func TestValidateFSRejectsDownBeforeUp(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301090000_swapped.sql": {Data: []byte("-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x (id int);\n")},
	}
	err := migrate.ValidateFS(fsys)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Down section before Up")
}

func TestValidateFSRejectsDuplicateVersions(t *testing.T) {
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	fsys := fstest.MapFS{
		"20260301090000_first.sql":  {Data: body},
		"20260301090000_second.sql": {Data: body},
	}
	require.ErrorContains(t, migrate.ValidateFS(fsys), "duplicate migration version")
}
