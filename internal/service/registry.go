package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jask/wbtrace/internal/metrics"
	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// UpsertRequest creates or updates a model. Versions are always computed by
// the registry; callers cannot supply one.
type UpsertRequest struct {
	ModelID       string
	ModelName     string
	TrackedRanges []workbook.TrackedRange
}

// Registry owns the lifecycle of workbook models.
type Registry struct {
	Models  storage.ModelStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// NewID generates ids for upserts without one. Defaults to NewModelID.
	NewID func() string
}

// Upsert applies the create-or-update transition:
//   - no id: insert under a generated id at version 1;
//   - id of an existing model: replace name and ranges, version+1;
//   - unknown id: insert under that id at version 1.
func (r *Registry) Upsert(ctx context.Context, req UpsertRequest) (m workbook.Model, err error) {
	ctx, span := tracer.Start(ctx, "Registry.Upsert")
	defer func() { endSpan(span, err) }()

	id := req.ModelID
	generated := id == ""
	if generated {
		id = r.newID()
	}
	span.SetAttributes(attribute.String("model.id", id), attribute.Bool("model.id_generated", generated))

	var previous int64
	m, err = r.Models.UpdateModel(ctx, id, func(current *workbook.Model) (workbook.Model, error) {
		next := workbook.Model{
			ID:            id,
			Name:          req.ModelName,
			TrackedRanges: workbook.CloneRanges(req.TrackedRanges),
			Version:       1,
		}
		previous = 0
		if current != nil {
			previous = current.Version
			next.Version = current.Version + 1
		}
		return next, nil
	})
	if err != nil {
		r.Metrics.ModelUpserted(metrics.OutcomeFailed)
		r.logger().ErrorContext(ctx, "model upsert failed", "model_id", id, "err", err)
		return workbook.Model{}, workbook.Unavailable("upsert model "+id, err)
	}

	if previous == 0 {
		r.Metrics.ModelUpserted(metrics.OutcomeCreated)
		r.logger().InfoContext(ctx, "model created",
			"model_id", m.ID, "model_name", m.Name, "version", m.Version,
			"generated_id", generated, "tracked_ranges", len(m.TrackedRanges))
	} else {
		r.Metrics.ModelUpserted(metrics.OutcomeUpdated)
		r.logger().InfoContext(ctx, "model updated",
			"model_id", m.ID, "model_name", m.Name,
			"from_version", previous, "version", m.Version, "tracked_ranges", len(m.TrackedRanges))
	}
	span.SetAttributes(attribute.Int64("model.version", m.Version))
	return m, nil
}

// Load returns the current snapshot of a model.
func (r *Registry) Load(ctx context.Context, id string) (m workbook.Model, err error) {
	ctx, span := tracer.Start(ctx, "Registry.Load")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("model.id", id))

	m, err = r.Models.GetModel(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return workbook.Model{}, workbook.NotFound("model not found: %s", id)
		}
		return workbook.Model{}, workbook.Unavailable("load model "+id, err)
	}
	return m, nil
}

// List returns every model, most recently created first.
func (r *Registry) List(ctx context.Context) (models []workbook.Model, err error) {
	ctx, span := tracer.Start(ctx, "Registry.List")
	defer func() { endSpan(span, err) }()

	models, err = r.Models.ListModels(ctx)
	if err != nil {
		r.logger().ErrorContext(ctx, "list models failed", "err", err)
		return nil, workbook.Unavailable("list models", err)
	}
	span.SetAttributes(attribute.Int("models.count", len(models)))
	return models, nil
}

func (r *Registry) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return NewModelID()
}

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
