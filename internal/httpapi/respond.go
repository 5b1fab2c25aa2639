package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jask/wbtrace/internal/service"
	"github.com/jask/wbtrace/internal/workbook"
)

const maxBodyBytes = 4 << 20

type errorResponse struct {
	Detail   string `json:"detail"`
	Recorded *int   `json:"recorded,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return workbook.InvalidInput("malformed request body: %v", err)
	}
	if dec.More() {
		return workbook.InvalidInput("malformed request body: trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch workbook.CodeOf(err) {
	case workbook.CodeNotFound:
		return http.StatusNotFound
	case workbook.CodeInvalidInput:
		return http.StatusBadRequest
	case workbook.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Detail: err.Error()}
	var batchErr *service.BatchError
	if errors.As(err, &batchErr) {
		resp.Recorded = &batchErr.Recorded
	}
	if status >= http.StatusInternalServerError {
		s.logger().ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	if status == http.StatusInternalServerError {
		resp.Detail = fmt.Sprintf("internal error: %v", err)
	}
	writeJSON(w, status, resp)
}
