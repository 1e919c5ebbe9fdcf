package database

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func hasTable(t *testing.T, db *gorm.DB, name string) bool {
	t.Helper()
	return db.Migrator().HasTable(name)
}

var testMigrations = []Migration{
	{Version: 1, Name: "tickets", UpScript: "CREATE TABLE tickets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE tickets"},
	{Version: 2, Name: "notes", UpScript: "CREATE TABLE notes (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE notes"},
}

func TestApplyPending_AppliesInOrderOnce(t *testing.T) {
	db := openLedgerDB(t)
	ctx := t.Context()

	require.NoError(t, applyPending(ctx, db, testMigrations))
	assert.True(t, hasTable(t, db, "tickets"))
	assert.True(t, hasTable(t, db, "notes"))

	// A second run finds nothing pending; re-running CREATE TABLE would fail.
	require.NoError(t, applyPending(ctx, db, testMigrations))

	applied, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	var row SchemaVersion
	require.NoError(t, db.First(&row, "version = ?", 1).Error)
	assert.Equal(t, checksum(testMigrations[0].UpScript), row.Checksum)
}

func TestApplyPending_FailedScriptLeavesNoLedgerEntry(t *testing.T) {
	db := openLedgerDB(t)
	ctx := t.Context()

	broken := []Migration{
		testMigrations[0],
		{Version: 2, Name: "broken", UpScript: "CREATE TABLE (", DownScript: ""},
	}
	err := applyPending(ctx, db, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002_broken")

	applied, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
}

func TestApplyPending_RejectsUnknownAppliedVersion(t *testing.T) {
	db := openLedgerDB(t)
	ctx := t.Context()

	require.NoError(t, applyPending(ctx, db, testMigrations))
	err := applyPending(ctx, db, testMigrations[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002")
}

func TestAppliedVersions_NoLedger(t *testing.T) {
	db := openLedgerDB(t)

	applied, err := AppliedVersions(t.Context(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRollback(t *testing.T) {
	db := openLedgerDB(t)
	ctx := t.Context()
	require.NoError(t, applyPending(ctx, db, testMigrations))

	require.NoError(t, rollback(ctx, db, testMigrations, 2))
	assert.False(t, hasTable(t, db, "notes"))
	assert.True(t, hasTable(t, db, "tickets"))

	applied, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)

	tests := []struct {
		version int
		want    string
	}{
		{2, "has not been applied"},
		{9, "not found"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("version %d", tt.version), func(t *testing.T) {
			err := rollback(ctx, db, testMigrations, tt.version)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
