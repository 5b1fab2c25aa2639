package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jask/wbtrace/internal/config"
	"github.com/jask/wbtrace/internal/database"
	"github.com/jask/wbtrace/internal/logging"
	"github.com/jask/wbtrace/internal/service"
	"github.com/jask/wbtrace/internal/workbook"
)

// loadConfig loads configuration with HOME and the config file isolated
// to the test.
func loadConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WBTRACE_CONFIG", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func runCmd(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOpenStoreLocalDrivers(t *testing.T) {
	cases := []struct {
		driver     string
		file       string
		persistent bool
	}{
		{config.DriverSQLite, "wbtrace.db", true},
		{config.DriverBolt, "wbtrace.bolt", true},
		{config.DriverMemory, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			cfg := config.StorageConfig{Driver: tc.driver}
			if tc.file != "" {
				cfg.Path = filepath.Join(t.TempDir(), "nested", tc.file)
			}

			store, err := openStore(ctx, cfg, logging.Discard())
			require.NoError(t, err)
			reg := &service.Registry{Models: store, Logger: logging.Discard()}
			m, err := reg.Upsert(ctx, service.UpsertRequest{ModelID: "m1", ModelName: "Budget"})
			require.NoError(t, err)
			require.Equal(t, int64(1), m.Version)
			require.NoError(t, store.Close())

			if !tc.persistent {
				return
			}
			store, err = openStore(ctx, cfg, logging.Discard())
			require.NoError(t, err)
			defer store.Close()
			got, err := store.GetModel(ctx, "m1")
			require.NoError(t, err)
			require.Equal(t, "Budget", got.Name)
		})
	}
}

func TestOpenStoreRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := openStore(ctx, config.StorageConfig{Driver: "mysql"}, logging.Discard())
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = openStore(ctx, config.StorageConfig{Driver: config.DriverSQLite}, logging.Discard())
	require.ErrorContains(t, err, "storage.path is required")
}

func TestMigrateCommand(t *testing.T) {
	cfg := loadConfig(t)
	dbPath := filepath.Join(t.TempDir(), "data", "wbtrace.db")

	out, err := runCmd(t, &cfg, "migrate", "--driver", "sqlite", "--db", dbPath)
	require.NoError(t, err)
	require.Contains(t, out, "schema up to date (sqlite)")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workbook_trace`).Scan(&n))
	require.Zero(t, n)

	// a second run is a no-op
	_, err = runCmd(t, &cfg, "migrate", "--driver", "sqlite", "--db", dbPath)
	require.NoError(t, err)
}

func TestMigrateCommandSkipsSchemaFreeDrivers(t *testing.T) {
	cfg := loadConfig(t)

	out, err := runCmd(t, &cfg, "migrate", "--driver", "memory")
	require.NoError(t, err)
	require.Contains(t, out, "nothing to do")

	_, err = runCmd(t, &cfg, "migrate", "--driver", "mysql")
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestInitConfigCommand(t *testing.T) {
	cfg := loadConfig(t)
	cfgPath := filepath.Join(t.TempDir(), "wbtrace", "config.toml")
	boltPath := filepath.Join(t.TempDir(), "wb.bolt")
	t.Setenv("WBTRACE_CONFIG", cfgPath)

	out, err := runCmd(t, &cfg, "init-config", "--driver", "bolt", "--db", boltPath)
	require.NoError(t, err)
	require.Contains(t, out, cfgPath)

	_, err = os.Stat(cfgPath)
	require.NoError(t, err)
	loaded, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.DriverBolt, loaded.Storage.Driver)
	require.Equal(t, boltPath, loaded.Storage.Path)
	require.Equal(t, cfg.Server.Addr, loaded.Server.Addr)
}

func TestExportCommand(t *testing.T) {
	cfg := loadConfig(t)
	dir := t.TempDir()
	cfg.Storage = config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "wbtrace.db")}
	ctx := context.Background()

	store, err := openStore(ctx, cfg.Storage, logging.Discard())
	require.NoError(t, err)
	reg := &service.Registry{Models: store, Logger: logging.Discard()}
	ledger := &service.Ledger{Models: reg, Traces: store, Logger: logging.Discard()}
	_, err = reg.Upsert(ctx, service.UpsertRequest{
		ModelID:       "m1",
		ModelName:     "Budget",
		TrackedRanges: []workbook.TrackedRange{{Name: "Revenue", Range: "Sheet1!A1:A12"}},
	})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, service.AppendRequest{ModelID: "m1", Timestamp: "2025-01-01", TrackedRangeName: "Revenue", Username: "alice", Value: workbook.Number(42)})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	outPath := filepath.Join(dir, "m1.xlsx")
	_, err = runCmd(t, &cfg, "export", "--model", "m1", "--out", outPath)
	require.NoError(t, err)

	f, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Traces")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "42", rows[1][4])

	_, err = runCmd(t, &cfg, "export", "--model", "missing", "--out", filepath.Join(dir, "x.xlsx"))
	require.ErrorContains(t, err, "model not found: missing")
}
