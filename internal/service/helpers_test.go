package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/wbtrace/internal/database"
	"github.com/jask/wbtrace/internal/database/boltstore"
	"github.com/jask/wbtrace/internal/database/memstore"
	"github.com/jask/wbtrace/internal/database/repository"
	"github.com/jask/wbtrace/internal/logging"
	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

type backend struct {
	name string
	open func(t *testing.T) storage.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) storage.Store { return memstore.New() }},
		{name: "sqlite", open: openSQLite},
		{name: "bolt", open: openBolt},
	}
}

func openSQLite(t *testing.T) storage.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	s := repository.NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openBolt(t *testing.T) storage.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newServices(store storage.Store) (*Registry, *Ledger) {
	logger := logging.Discard()
	reg := &Registry{Models: store, Logger: logger}
	return reg, &Ledger{Models: reg, Traces: store, Logger: logger}
}

// flakyTraces fails every append from the failAt-th call on.
type flakyTraces struct {
	storage.TraceStore
	failAt int
	calls  int
}

func (f *flakyTraces) AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	f.calls++
	if f.calls >= f.failAt {
		return workbook.Trace{}, errors.New("disk I/O error")
	}
	return f.TraceStore.AppendTrace(ctx, t)
}

type brokenModels struct {
	storage.ModelStore
}

func (brokenModels) UpdateModel(context.Context, string, storage.UpdateFunc) (workbook.Model, error) {
	return workbook.Model{}, errors.New("connection refused")
}

func (brokenModels) GetModel(context.Context, string) (workbook.Model, error) {
	return workbook.Model{}, errors.New("connection refused")
}

func ranges(pairs ...string) []workbook.TrackedRange {
	out := make([]workbook.TrackedRange, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, workbook.TrackedRange{Name: pairs[i], Range: pairs[i+1]})
	}
	return out
}
