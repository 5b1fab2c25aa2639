package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/storage/storagetest"
	"github.com/jask/wbtrace/internal/workbook"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(filepath.Join(t.TempDir(), "test.bolt"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bolt")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.UpdateModel(ctx, "m", func(*workbook.Model) (workbook.Model, error) {
		return workbook.Model{Name: "M", Version: 1}, nil
	})
	require.NoError(t, err)
	first, err := s.AppendTrace(ctx, workbook.Trace{ModelID: "m", Timestamp: "t", TrackedRangeName: "A", Username: "u"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	m, err := s.GetModel(ctx, "m")
	require.NoError(t, err)
	require.Equal(t, int64(1), m.Version)

	second, err := s.AppendTrace(ctx, workbook.Trace{ModelID: "m", Timestamp: "t", TrackedRangeName: "A", Username: "u"})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)
}

func TestTraceKeysSortNumerically(t *testing.T) {
	require.Less(t, string(traceKey(9)), string(traceKey(10)))
	require.Less(t, string(traceKey(255)), string(traceKey(256)))
}
