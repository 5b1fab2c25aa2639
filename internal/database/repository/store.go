package repository

import (
	"context"
	"database/sql"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// Store adapts the sqlite repositories to storage.Store.
type Store struct {
	db     *sql.DB
	Models *ModelRepo
	Traces *TraceRepo
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, Models: NewModelRepo(db), Traces: NewTraceRepo(db)}
}

func (s *Store) UpdateModel(ctx context.Context, id string, fn storage.UpdateFunc) (workbook.Model, error) {
	return s.Models.Update(ctx, id, fn)
}

func (s *Store) GetModel(ctx context.Context, id string) (workbook.Model, error) {
	return s.Models.Get(ctx, id)
}

func (s *Store) ListModels(ctx context.Context) ([]workbook.Model, error) {
	return s.Models.List(ctx)
}

func (s *Store) CountModels(ctx context.Context) (int, error) { return s.Models.Count(ctx) }

func (s *Store) AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	return s.Traces.Append(ctx, t)
}

func (s *Store) ListTracesByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	return s.Traces.ListByModel(ctx, modelID, limit)
}

func (s *Store) ListTraces(ctx context.Context, limit int) ([]workbook.Trace, error) {
	return s.Traces.List(ctx, limit)
}

func (s *Store) CountTraces(ctx context.Context) (int, error) { return s.Traces.Count(ctx) }

func (s *Store) Close() error { return s.db.Close() }
