// Package storagetest checks that a storage.Store honours the behaviour the
// registry and the ledger depend on.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// Opener returns an empty store. It should register its own cleanup.
type Opener func(t *testing.T) storage.Store

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("UpdateInsertsThenReplaces", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("UpdateFuncErrorWritesNothing", func(t *testing.T) { testUpdateFuncError(t, open(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, open(t)) })
	t.Run("ListModels", func(t *testing.T) { testListModels(t, open(t)) })
	t.Run("AppendAssignsIDs", func(t *testing.T) { testAppend(t, open(t)) })
	t.Run("TraceOrdering", func(t *testing.T) { testTraceOrdering(t, open(t)) })
	t.Run("TraceLimit", func(t *testing.T) { testTraceLimit(t, open(t)) })
}

func bump(name string, ranges ...workbook.TrackedRange) storage.UpdateFunc {
	return func(current *workbook.Model) (workbook.Model, error) {
		next := workbook.Model{Name: name, TrackedRanges: ranges, Version: 1}
		if current != nil {
			next.Version = current.Version + 1
		}
		return next, nil
	}
}

func testGetMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetModel(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.CountModels(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ranges := []workbook.TrackedRange{{Name: "Revenue", Range: "Sheet1!A1:A12"}, {Name: "Revenue", Range: "Sheet2!A1"}}

	var sawNil bool
	m, err := s.UpdateModel(ctx, "m1", func(current *workbook.Model) (workbook.Model, error) {
		sawNil = current == nil
		return bump("Budget", ranges...)(current)
	})
	require.NoError(t, err)
	require.True(t, sawNil)
	require.Equal(t, "m1", m.ID)
	require.Equal(t, int64(1), m.Version)
	require.False(t, m.CreatedAt.IsZero())

	m, err = s.UpdateModel(ctx, "m1", func(current *workbook.Model) (workbook.Model, error) {
		require.NotNil(t, current)
		require.Equal(t, ranges, current.TrackedRanges)
		return bump("Budget v2")(current)
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), m.Version)

	got, err := s.GetModel(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "Budget v2", got.Name)
	require.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.TrackedRanges)
	require.Empty(t, got.TrackedRanges)
}

func testUpdateFuncError(t *testing.T, s storage.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := s.UpdateModel(ctx, "m1", func(*workbook.Model) (workbook.Model, error) {
		return workbook.Model{}, boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetModel(ctx, "m1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentUpdates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const callers = 16

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateModel(ctx, "shared", bump("Shared"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m, err := s.GetModel(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, int64(callers), m.Version)
}

func testListModels(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.UpdateModel(ctx, id, bump(id))
		require.NoError(t, err)
	}
	// updating does not move a model in the listing
	_, err := s.UpdateModel(ctx, "a", bump("a"))
	require.NoError(t, err)

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 3)
	require.Equal(t, []string{"c", "b", "a"}, []string{models[0].ID, models[1].ID, models[2].ID})

	n, err := s.CountModels(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func seedModel(t *testing.T, s storage.Store, id string) {
	t.Helper()
	_, err := s.UpdateModel(context.Background(), id, bump(id))
	require.NoError(t, err)
}

func testAppend(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedModel(t, s, "m1")

	value := workbook.Map(map[string]workbook.Value{
		"rows":  workbook.List(workbook.List(workbook.Number(1), workbook.String("x")), workbook.List(workbook.Null(), workbook.Bool(true))),
		"total": workbook.Number(12.5),
		"id":    mustLiteral(t, "9007199254740993"),
		"big":   mustLiteral(t, "12345678901234567890"),
	})
	first, err := s.AppendTrace(ctx, workbook.Trace{ModelID: "m1", Timestamp: "2025-01-01T00:00:00Z", TrackedRangeName: "A", Username: "alice", Value: value})
	require.NoError(t, err)
	second, err := s.AppendTrace(ctx, workbook.Trace{ModelID: "m1", Timestamp: "2025-01-01T00:00:00Z", TrackedRangeName: "A", Username: "alice"})
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)
	require.False(t, first.CreatedAt.IsZero())

	traces, err := s.ListTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	require.True(t, traces[1].Value.Equal(value), "got %s", traces[1].Value)
	lit, ok := traces[1].Value.Fields()["id"].Literal()
	require.True(t, ok)
	require.Equal(t, "9007199254740993", lit.String())
	require.True(t, traces[0].Value.IsNull())
	require.Equal(t, "alice", traces[1].Username)

	n, err := s.CountTraces(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func testTraceOrdering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedModel(t, s, "a")
	seedModel(t, s, "b")

	appendTrace := func(model, ts, name string) workbook.Trace {
		tr, err := s.AppendTrace(ctx, workbook.Trace{ModelID: model, Timestamp: ts, TrackedRangeName: name, Username: "u"})
		require.NoError(t, err)
		return tr
	}
	t1 := appendTrace("a", "2025-01-02", "first")
	t2 := appendTrace("a", "2025-01-03", "second")
	t3 := appendTrace("a", "2025-01-02", "third")
	t4 := appendTrace("b", "2025-01-09", "other")

	byModel, err := s.ListTracesByModel(ctx, "a", 10)
	require.NoError(t, err)
	require.Equal(t, []int64{t2.ID, t3.ID, t1.ID}, ids(byModel))

	all, err := s.ListTraces(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{t4.ID, t3.ID, t2.ID, t1.ID}, ids(all))

	none, err := s.ListTracesByModel(ctx, "missing", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func testTraceLimit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seedModel(t, s, "m")
	for i := 0; i < 5; i++ {
		_, err := s.AppendTrace(ctx, workbook.Trace{ModelID: "m", Timestamp: fmt.Sprintf("2025-01-0%d", i+1), TrackedRangeName: "A", Username: "u"})
		require.NoError(t, err)
	}

	traces, err := s.ListTracesByModel(ctx, "m", 2)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	require.Equal(t, "2025-01-05", traces[0].Timestamp)

	traces, err = s.ListTraces(ctx, 3)
	require.NoError(t, err)
	require.Len(t, traces, 3)
}

func ids(traces []workbook.Trace) []int64 {
	out := make([]int64, len(traces))
	for i, tr := range traces {
		out[i] = tr.ID
	}
	return out
}

func mustLiteral(t *testing.T, lit string) workbook.Value {
	t.Helper()
	v, err := workbook.NumberLiteral(lit)
	require.NoError(t, err)
	return v
}
