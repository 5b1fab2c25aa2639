// Package memstore provides an in-process storage backend. Model updates are
// serialized per id by a refcounted lock table.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// Store keeps models and traces in memory.
type Store struct {
	locks keyLocks

	mu      sync.RWMutex
	models  map[string]workbook.Model
	created map[string]uint64 // insertion sequence, for listing
	seq     uint64
	traces  []workbook.Trace
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		models:  map[string]workbook.Model{},
		created: map[string]uint64{},
	}
}

func (s *Store) UpdateModel(ctx context.Context, id string, fn storage.UpdateFunc) (workbook.Model, error) {
	if err := ctx.Err(); err != nil {
		return workbook.Model{}, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	s.mu.RLock()
	existing, found := s.models[id]
	s.mu.RUnlock()

	var current *workbook.Model
	if found {
		c := existing.Clone()
		current = &c
	}
	next, err := fn(current)
	if err != nil {
		return workbook.Model{}, err
	}
	next = next.Clone()
	next.ID = id
	now := time.Now().UTC()
	next.UpdatedAt = now
	if found {
		next.CreatedAt = existing.CreatedAt
	} else {
		next.CreatedAt = now
	}

	s.mu.Lock()
	if !found {
		s.seq++
		s.created[id] = s.seq
	}
	s.models[id] = next
	s.mu.Unlock()

	return next.Clone(), nil
}

func (s *Store) GetModel(ctx context.Context, id string) (workbook.Model, error) {
	if err := ctx.Err(); err != nil {
		return workbook.Model{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return workbook.Model{}, storage.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ListModels(ctx context.Context) ([]workbook.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]workbook.Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m.Clone())
	}
	created := make(map[string]uint64, len(s.created))
	for id, seq := range s.created {
		created[id] = seq
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return created[out[i].ID] > created[out[j].ID] })
	return out, nil
}

func (s *Store) CountModels(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models), nil
}

func (s *Store) AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return workbook.Trace{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = int64(len(s.traces)) + 1
	t.CreatedAt = time.Now().UTC()
	s.traces = append(s.traces, t)
	return t, nil
}

func (s *Store) ListTracesByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []workbook.Trace
	for i := len(s.traces) - 1; i >= 0; i-- {
		if s.traces[i].ModelID == modelID {
			out = append(out, s.traces[i])
		}
	}
	s.mu.RUnlock()

	// out is newest first, so a stable sort keeps that order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return truncate(out, limit), nil
}

func (s *Store) ListTraces(ctx context.Context, limit int) ([]workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.traces)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]workbook.Trace, 0, n)
	for i := len(s.traces) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.traces[i])
	}
	return out, nil
}

func (s *Store) CountTraces(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces), nil
}

func (s *Store) Close() error { return nil }

func truncate(traces []workbook.Trace, limit int) []workbook.Trace {
	if limit >= 0 && len(traces) > limit {
		return traces[:limit]
	}
	return traces
}
