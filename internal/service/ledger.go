package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jask/wbtrace/internal/metrics"
	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// Listing limits.
const (
	DefaultModelTraceLimit = 50
	DefaultTraceLimit      = 100
	MaxTraceLimit          = 1000
)

// ModelLoader resolves model ids. *Registry implements it.
type ModelLoader interface {
	Load(ctx context.Context, id string) (workbook.Model, error)
}

// AppendRequest records one value change.
type AppendRequest struct {
	ModelID          string
	Timestamp        string
	TrackedRangeName string
	Username         string
	Value            workbook.Value
}

// BatchRequest records several changes sharing a timestamp and username.
type BatchRequest struct {
	ModelID   string
	Timestamp string
	Username  string
	Changes   []workbook.Change
}

// BatchError reports a batch that stopped part way. The first Recorded
// changes are durably stored; the rest are not.
type BatchError struct {
	ModelID  string
	Recorded int
	Total    int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("trace batch for %s stopped after %d of %d changes: %v", e.ModelID, e.Recorded, e.Total, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Ledger records trace entries against models known to the registry. It
// never modifies models.
type Ledger struct {
	Models  ModelLoader
	Traces  storage.TraceStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Append stores one trace. It fails with a not_found error, writing nothing,
// when the model does not exist.
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (t workbook.Trace, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.Append")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("model.id", req.ModelID))

	m, err := l.resolve(ctx, req.ModelID, "trace rejected")
	if err != nil {
		return workbook.Trace{}, err
	}
	l.checkRange(ctx, m, req.TrackedRangeName)

	t, err = l.Traces.AppendTrace(ctx, workbook.Trace{
		ModelID:          req.ModelID,
		Timestamp:        req.Timestamp,
		TrackedRangeName: req.TrackedRangeName,
		Username:         req.Username,
		Value:            req.Value,
	})
	if err != nil {
		l.Metrics.TraceRejected(metrics.ReasonStorage)
		l.logger().ErrorContext(ctx, "trace append failed", "model_id", req.ModelID, "err", err)
		return workbook.Trace{}, workbook.Unavailable("append trace for "+req.ModelID, err)
	}
	l.Metrics.TracesRecorded(1)
	l.logger().InfoContext(ctx, "trace recorded",
		"model_id", m.ID, "model_name", m.Name,
		"tracked_range", req.TrackedRangeName, "value", req.Value.String(), "username", req.Username)
	return t, nil
}

// AppendBatch checks the model once, then appends every change
// independently. On a storage failure it returns the number of changes
// already recorded together with a *BatchError; those entries stay recorded.
func (l *Ledger) AppendBatch(ctx context.Context, req BatchRequest) (recorded int, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.AppendBatch")
	defer func() {
		span.SetAttributes(attribute.Int("batch.recorded", recorded))
		endSpan(span, err)
	}()
	span.SetAttributes(attribute.String("model.id", req.ModelID), attribute.Int("batch.size", len(req.Changes)))

	m, err := l.resolve(ctx, req.ModelID, "batch trace rejected")
	if err != nil {
		return 0, err
	}
	l.Metrics.BatchReceived(len(req.Changes))

	for i, c := range req.Changes {
		l.checkRange(ctx, m, c.TrackedRangeName)
		_, err := l.Traces.AppendTrace(ctx, workbook.Trace{
			ModelID:          req.ModelID,
			Timestamp:        req.Timestamp,
			TrackedRangeName: c.TrackedRangeName,
			Username:         req.Username,
			Value:            c.Value,
		})
		if err != nil {
			l.Metrics.TracesRecorded(i)
			l.Metrics.TraceRejected(metrics.ReasonStorage)
			l.logger().ErrorContext(ctx, "batch trace append failed",
				"model_id", req.ModelID, "recorded", i, "total", len(req.Changes), "err", err)
			return i, &BatchError{
				ModelID:  req.ModelID,
				Recorded: i,
				Total:    len(req.Changes),
				Err:      workbook.Unavailable("append trace for "+req.ModelID, err),
			}
		}
	}

	l.Metrics.TracesRecorded(len(req.Changes))
	l.logger().InfoContext(ctx, "batch trace recorded",
		"model_id", m.ID, "model_name", m.Name, "changes", len(req.Changes), "username", req.Username)
	return len(req.Changes), nil
}

// ListByModel returns a model's traces by caller timestamp, newest first.
func (l *Ledger) ListByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	if _, err := l.Models.Load(ctx, modelID); err != nil {
		return nil, err
	}
	traces, err := l.Traces.ListTracesByModel(ctx, modelID, clampLimit(limit, DefaultModelTraceLimit))
	if err != nil {
		return nil, workbook.Unavailable("list traces for "+modelID, err)
	}
	return traces, nil
}

// ListAll returns traces across all models in reverse insertion order.
func (l *Ledger) ListAll(ctx context.Context, limit int) ([]workbook.Trace, error) {
	traces, err := l.Traces.ListTraces(ctx, clampLimit(limit, DefaultTraceLimit))
	if err != nil {
		return nil, workbook.Unavailable("list traces", err)
	}
	return traces, nil
}

func (l *Ledger) resolve(ctx context.Context, modelID, rejection string) (workbook.Model, error) {
	m, err := l.Models.Load(ctx, modelID)
	if err != nil {
		reason := metrics.ReasonStorage
		if workbook.CodeOf(err) == workbook.CodeNotFound {
			reason = metrics.ReasonModelNotFound
		}
		l.Metrics.TraceRejected(reason)
		l.logger().WarnContext(ctx, rejection, "model_id", modelID, "err", err)
		return workbook.Model{}, err
	}
	return m, nil
}

// checkRange only logs: traces naming undeclared ranges are still recorded.
func (l *Ledger) checkRange(ctx context.Context, m workbook.Model, name string) {
	if m.HasRange(name) {
		return
	}
	l.Metrics.UnknownRange()
	attrs := []any{"model_id", m.ID, "tracked_range", name}
	if suggestion, ok := closestRange(m.TrackedRanges, name); ok {
		attrs = append(attrs, "did_you_mean", suggestion)
	}
	l.logger().WarnContext(ctx, "trace names an undeclared tracked range", attrs...)
}

// closestRange returns the declared range name with the smallest edit
// distance to name.
func closestRange(ranges []workbook.TrackedRange, name string) (string, bool) {
	best, bestDist := "", -1
	for _, r := range ranges {
		d := levenshtein.ComputeDistance(name, r.Name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = r.Name, d
		}
	}
	return best, bestDist >= 0
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxTraceLimit {
		return MaxTraceLimit
	}
	return limit
}

func (l *Ledger) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
