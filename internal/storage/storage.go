// Package storage defines the persistence contracts of the model registry and
// the trace ledger.
package storage

import (
	"context"
	"errors"

	"github.com/jask/wbtrace/internal/workbook"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// UpdateFunc computes the next snapshot of a model from the current one.
// current is nil when no record exists under the id.
type UpdateFunc func(current *workbook.Model) (workbook.Model, error)

// ModelStore persists workbook models.
type ModelStore interface {
	// UpdateModel runs fn and persists its result as one atomic
	// read-modify-write. Calls for the same id are serialized so no update
	// observes a stale version. Nothing is written when fn fails.
	UpdateModel(ctx context.Context, id string, fn UpdateFunc) (workbook.Model, error)
	GetModel(ctx context.Context, id string) (workbook.Model, error)
	// ListModels returns every model, most recently created first.
	ListModels(ctx context.Context) ([]workbook.Model, error)
	CountModels(ctx context.Context) (int, error)
}

// TraceStore is an append-only trace log.
type TraceStore interface {
	// AppendTrace stores t and returns it with its surrogate ID and
	// creation time assigned.
	AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error)
	// ListTracesByModel orders by caller timestamp descending, newest insert
	// first among equal timestamps.
	ListTracesByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error)
	// ListTraces orders by insertion, newest first.
	ListTraces(ctx context.Context, limit int) ([]workbook.Trace, error)
	CountTraces(ctx context.Context) (int, error)
}

// Store is a complete backend.
type Store interface {
	ModelStore
	TraceStore
	Close() error
}
