package service

import (
	"context"
	"fmt"

	"github.com/jask/wbtrace/internal/storage"
)

// Stats summarizes the contents of a store.
type Stats struct {
	Models int
	Traces int
}

// MaintenanceService houses operational read-outs surfaced by the health
// endpoint.
type MaintenanceService struct {
	Models storage.ModelStore
	Traces storage.TraceStore
}

// Stats counts models and traces. Failure means the store is unhealthy.
func (s *MaintenanceService) Stats(ctx context.Context) (Stats, error) {
	if s.Models == nil || s.Traces == nil {
		return Stats{}, fmt.Errorf("maintenance: store not configured")
	}
	models, err := s.Models.CountModels(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count models: %w", err)
	}
	traces, err := s.Traces.CountTraces(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count traces: %w", err)
	}
	return Stats{Models: models, Traces: traces}, nil
}
