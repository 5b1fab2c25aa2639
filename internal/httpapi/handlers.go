package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jask/wbtrace/internal/service"
	"github.com/jask/wbtrace/internal/workbook"
)

type modelResponse struct {
	ModelName     string                  `json:"model_name"`
	TrackedRanges []workbook.TrackedRange `json:"tracked_ranges"`
	ModelID       string                  `json:"model_id"`
	Version       int64                   `json:"version"`
}

func toModelResponse(m workbook.Model) modelResponse {
	return modelResponse{
		ModelName:     m.Name,
		TrackedRanges: workbook.CloneRanges(m.TrackedRanges),
		ModelID:       m.ID,
		Version:       m.Version,
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Service     string `json:"service"`
	Status      string `json:"status"`
	Storage     string `json:"storage,omitempty"`
	ModelsCount *int   `json:"models_count,omitempty"`
	TracesCount *int   `json:"traces_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Service: "wbtrace", Status: "healthy", Storage: s.StorageName}
	if s.Maintenance != nil {
		stats, err := s.Maintenance.Stats(r.Context())
		if err != nil {
			s.logger().ErrorContext(r.Context(), "health check failed", "err", err)
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.ModelsCount = &stats.Models
		resp.TracesCount = &stats.Traces
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertModel(w http.ResponseWriter, r *http.Request) {
	var req upsertModelRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.Registry.Upsert(r.Context(), req.toService())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModelResponse(m))
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("model_id")
	if id == "" {
		s.writeError(w, r, workbook.InvalidInput("model_id is required"))
		return
	}
	m, err := s.Registry.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModelResponse(m))
}

func (s *Server) handleCreateTrace(w http.ResponseWriter, r *http.Request) {
	var req traceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.Ledger.Append(r.Context(), req.toService()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleCreateTraceBatch(w http.ResponseWriter, r *http.Request) {
	var req batchTraceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.Ledger.AppendBatch(r.Context(), req.toService()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Registry.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if models == nil {
		models = []workbook.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleListModelTraces(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, service.DefaultModelTraceLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	traces, err := s.Ledger.ListByModel(r.Context(), chi.URLParam(r, "model_id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeTraces(w, traces)
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, service.DefaultTraceLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	traces, err := s.Ledger.ListAll(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeTraces(w, traces)
}

func writeTraces(w http.ResponseWriter, traces []workbook.Trace) {
	if traces == nil {
		traces = []workbook.Trace{}
	}
	writeJSON(w, http.StatusOK, traces)
}

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, workbook.InvalidInput("limit must be an integer, got %q", raw)
	}
	return n, nil
}
