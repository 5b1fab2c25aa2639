package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/wbtrace/internal/database/memstore"
	"github.com/jask/wbtrace/internal/workbook"
)

func TestAppendRejectsUnknownModel(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := b.open(t)
			_, ledger := newServices(store)

			_, err := ledger.Append(ctx, AppendRequest{
				ModelID: "unknown-id", Timestamp: "2025-01-01T00:00:00Z",
				TrackedRangeName: "Revenue", Username: "alice", Value: workbook.Number(1000),
			})
			require.ErrorIs(t, err, workbook.ErrNotFound)
			require.Contains(t, err.Error(), "unknown-id")

			n, err := ledger.AppendBatch(ctx, BatchRequest{
				ModelID: "unknown-id", Timestamp: "2025-01-01T00:00:00Z", Username: "alice",
				Changes: []workbook.Change{{TrackedRangeName: "Revenue", Value: workbook.Number(1)}},
			})
			require.ErrorIs(t, err, workbook.ErrNotFound)
			require.Zero(t, n)

			count, err := store.CountTraces(ctx)
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestAppendBatchRecordsEveryChange(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := b.open(t)
			reg, ledger := newServices(store)

			m, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget", TrackedRanges: ranges("Revenue", "A1:A12", "Costs", "B1:B12")})
			require.NoError(t, err)

			changes := []workbook.Change{
				{TrackedRangeName: "Revenue", Value: workbook.List(workbook.Number(1), workbook.Number(2))},
				{TrackedRangeName: "Costs", Value: workbook.String("n/a")},
				{TrackedRangeName: "Revenue", Value: workbook.Map(map[string]workbook.Value{"total": workbook.Number(3)})},
			}
			n, err := ledger.AppendBatch(ctx, BatchRequest{ModelID: m.ID, Timestamp: "t1", Username: "bob", Changes: changes})
			require.NoError(t, err)
			require.Equal(t, 3, n)

			traces, err := ledger.ListByModel(ctx, m.ID, 10)
			require.NoError(t, err)
			require.Len(t, traces, 3)
			for _, tr := range traces {
				require.Equal(t, "t1", tr.Timestamp)
				require.Equal(t, "bob", tr.Username)
				require.Equal(t, m.ID, tr.ModelID)
			}
			// equal timestamps: newest insert first
			require.True(t, traces[0].Value.Equal(changes[2].Value))
			require.True(t, traces[1].Value.Equal(changes[1].Value))
			require.True(t, traces[2].Value.Equal(changes[0].Value))
		})
	}
}

func TestAppendBatchEmptyIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	reg, ledger := newServices(store)

	m, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget"})
	require.NoError(t, err)
	n, err := ledger.AppendBatch(ctx, BatchRequest{ModelID: m.ID, Timestamp: "t", Username: "u"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAppendBatchPartialFailureKeepsPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	reg, ledger := newServices(store)
	ledger.Traces = &flakyTraces{TraceStore: store, failAt: 3}

	m, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget"})
	require.NoError(t, err)

	changes := make([]workbook.Change, 5)
	for i := range changes {
		changes[i] = workbook.Change{TrackedRangeName: "R", Value: workbook.Number(float64(i))}
	}
	n, err := ledger.AppendBatch(ctx, BatchRequest{ModelID: m.ID, Timestamp: "t", Username: "u", Changes: changes})
	require.Error(t, err)
	require.Equal(t, 2, n)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Equal(t, 2, batchErr.Recorded)
	require.Equal(t, 5, batchErr.Total)
	require.ErrorIs(t, err, workbook.ErrUnavailable)

	count, err := store.CountTraces(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestAppendAcceptsUndeclaredRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, ledger := newServices(memstore.New())

	m, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget", TrackedRanges: ranges("Revenue", "A1:A12")})
	require.NoError(t, err)
	tr, err := ledger.Append(ctx, AppendRequest{ModelID: m.ID, Timestamp: "t", TrackedRangeName: "Revenu", Username: "alice", Value: workbook.Bool(true)})
	require.NoError(t, err)
	require.Equal(t, "Revenu", tr.TrackedRangeName)
	require.NotZero(t, tr.ID)
}

func TestAppendDoesNotTouchModel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, ledger := newServices(memstore.New())

	m, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget", TrackedRanges: ranges("Revenue", "A1:A12")})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, AppendRequest{ModelID: m.ID, Timestamp: "t", TrackedRangeName: "Revenue", Username: "a", Value: workbook.Number(1)})
	require.NoError(t, err)

	loaded, err := reg.Load(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Version, loaded.Version)
}

func TestListOrdering(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			reg, ledger := newServices(b.open(t))

			a, err := reg.Upsert(ctx, UpsertRequest{ModelID: "a", ModelName: "A"})
			require.NoError(t, err)
			other, err := reg.Upsert(ctx, UpsertRequest{ModelID: "b", ModelName: "B"})
			require.NoError(t, err)

			// timestamps deliberately out of insertion order
			for _, ts := range []string{"2025-01-02", "2025-01-03", "2025-01-01"} {
				_, err := ledger.Append(ctx, AppendRequest{ModelID: a.ID, Timestamp: ts, TrackedRangeName: "R", Username: "u", Value: workbook.String(ts)})
				require.NoError(t, err)
			}
			_, err = ledger.Append(ctx, AppendRequest{ModelID: other.ID, Timestamp: "2024-12-31", TrackedRangeName: "R", Username: "u"})
			require.NoError(t, err)

			byModel, err := ledger.ListByModel(ctx, a.ID, 0)
			require.NoError(t, err)
			require.Equal(t, []string{"2025-01-03", "2025-01-02", "2025-01-01"}, timestamps(byModel))

			limited, err := ledger.ListByModel(ctx, a.ID, 2)
			require.NoError(t, err)
			require.Equal(t, []string{"2025-01-03", "2025-01-02"}, timestamps(limited))

			all, err := ledger.ListAll(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, []string{"2024-12-31", "2025-01-01", "2025-01-03", "2025-01-02"}, timestamps(all))
			require.True(t, all[3].Value.Equal(workbook.String("2025-01-02")))
			require.True(t, all[0].Value.IsNull())

			recent, err := ledger.ListAll(ctx, 1)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			require.Equal(t, other.ID, recent[0].ModelID)

			_, err = ledger.ListByModel(ctx, "missing", 10)
			require.ErrorIs(t, err, workbook.ErrNotFound)
		})
	}
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			reg, ledger := newServices(b.open(t))

			created, err := reg.Upsert(ctx, UpsertRequest{ModelName: "Budget FY25", TrackedRanges: ranges("Revenue", "A1:A12")})
			require.NoError(t, err)
			require.EqualValues(t, 1, created.Version)
			x := created.ID

			updated, err := reg.Upsert(ctx, UpsertRequest{ModelID: x, ModelName: "Budget FY25", TrackedRanges: ranges("Revenue", "A1:A12", "Costs", "B1:B12")})
			require.NoError(t, err)
			require.Equal(t, x, updated.ID)
			require.EqualValues(t, 2, updated.Version)

			_, err = ledger.Append(ctx, AppendRequest{ModelID: x, Timestamp: "t1", TrackedRangeName: "Revenue", Username: "alice", Value: workbook.Number(1000)})
			require.NoError(t, err)

			loaded, err := reg.Load(ctx, x)
			require.NoError(t, err)
			require.EqualValues(t, 2, loaded.Version)
			require.Len(t, loaded.TrackedRanges, 2)

			_, err = ledger.Append(ctx, AppendRequest{ModelID: "unknown-id", Timestamp: "t1", TrackedRangeName: "Revenue", Username: "alice", Value: workbook.Number(1000)})
			require.ErrorIs(t, err, workbook.ErrNotFound)
		})
	}
}

func TestClosestRange(t *testing.T) {
	t.Parallel()
	got, ok := closestRange(ranges("Revenue", "A1", "Costs", "B1"), "Cots")
	require.True(t, ok)
	require.Equal(t, "Costs", got)

	_, ok = closestRange(nil, "Costs")
	require.False(t, ok)
}

func TestClampLimit(t *testing.T) {
	t.Parallel()
	require.Equal(t, 50, clampLimit(0, 50))
	require.Equal(t, 50, clampLimit(-3, 50))
	require.Equal(t, 7, clampLimit(7, 50))
	require.Equal(t, MaxTraceLimit, clampLimit(MaxTraceLimit+1, 50))
}

func timestamps(traces []workbook.Trace) []string {
	out := make([]string, len(traces))
	for i, tr := range traces {
		out[i] = tr.Timestamp
	}
	return out
}
