package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(dbPath))
	// applying twice is a no-op
	require.NoError(t, RunMigrations(dbPath))
	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationsCreateTables(t *testing.T) {
	db := openMigrated(t)
	for _, table := range []string{"workbook_model", "workbook_trace"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
	var indexes int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_workbook_%'`).Scan(&indexes))
	require.Equal(t, 6, indexes)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO workbook_model(model_id, model_name, version, tracked_ranges, created_at, updated_at) VALUES ('m', 'M', 1, '[]', ?, ?)`, Now(), Now())
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workbook_model`).Scan(&n))
	require.Zero(t, n)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = WithTx(ctx, db, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO workbook_model(model_id, model_name, version, tracked_ranges, created_at, updated_at) VALUES ('m', 'M', 1, '[]', ?, ?)`, Now(), Now())
			panic("boom")
		})
	})

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workbook_model`).Scan(&n))
	require.Zero(t, n)
}

func TestPgx5URL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@h:5432/db", pgx5URL("postgres://u:p@h:5432/db"))
	require.Equal(t, "pgx5://u@h/db?sslmode=disable", pgx5URL("postgresql://u@h/db?sslmode=disable"))
	require.Equal(t, "pgx5://h/db", pgx5URL("pgx5://h/db"))
}
