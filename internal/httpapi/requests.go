package httpapi

import (
	"github.com/jask/wbtrace/internal/service"
	"github.com/jask/wbtrace/internal/workbook"
)

type trackedRangePayload struct {
	Name  *string `json:"name"`
	Range *string `json:"range"`
}

type upsertModelRequest struct {
	ModelName     *string                `json:"model_name"`
	TrackedRanges *[]trackedRangePayload `json:"tracked_ranges"`
	ModelID       *string                `json:"model_id"`
	// Version is accepted for compatibility with add-in clients and ignored;
	// the registry computes versions.
	Version *int64 `json:"version"`
}

func (req upsertModelRequest) validate() error {
	if req.ModelName == nil {
		return workbook.InvalidInput("model_name is required")
	}
	if req.TrackedRanges == nil {
		return workbook.InvalidInput("tracked_ranges is required")
	}
	for i, tr := range *req.TrackedRanges {
		if tr.Name == nil || tr.Range == nil {
			return workbook.InvalidInput("tracked_ranges[%d]: name and range are required", i)
		}
	}
	return nil
}

func (req upsertModelRequest) toService() service.UpsertRequest {
	out := service.UpsertRequest{ModelName: *req.ModelName}
	if req.ModelID != nil {
		out.ModelID = *req.ModelID
	}
	for _, tr := range *req.TrackedRanges {
		out.TrackedRanges = append(out.TrackedRanges, workbook.TrackedRange{Name: *tr.Name, Range: *tr.Range})
	}
	return out
}

type traceRequest struct {
	ModelID          *string        `json:"model_id"`
	Timestamp        *string        `json:"timestamp"`
	TrackedRangeName *string        `json:"tracked_range_name"`
	Username         *string        `json:"username"`
	Value            workbook.Value `json:"value"`
}

func (req traceRequest) validate() error {
	return requireFields(
		field{"model_id", req.ModelID},
		field{"timestamp", req.Timestamp},
		field{"tracked_range_name", req.TrackedRangeName},
		field{"username", req.Username},
	)
}

func (req traceRequest) toService() service.AppendRequest {
	return service.AppendRequest{
		ModelID:          *req.ModelID,
		Timestamp:        *req.Timestamp,
		TrackedRangeName: *req.TrackedRangeName,
		Username:         *req.Username,
		Value:            req.Value,
	}
}

type changePayload struct {
	TrackedRangeName *string        `json:"tracked_range_name"`
	Value            workbook.Value `json:"value"`
}

type batchTraceRequest struct {
	ModelID   *string          `json:"model_id"`
	Timestamp *string          `json:"timestamp"`
	Changes   *[]changePayload `json:"changes"`
	Username  *string          `json:"username"`
}

func (req batchTraceRequest) validate() error {
	if err := requireFields(
		field{"model_id", req.ModelID},
		field{"timestamp", req.Timestamp},
		field{"username", req.Username},
	); err != nil {
		return err
	}
	if req.Changes == nil {
		return workbook.InvalidInput("changes is required")
	}
	for i, c := range *req.Changes {
		if c.TrackedRangeName == nil {
			return workbook.InvalidInput("changes[%d]: tracked_range_name is required", i)
		}
	}
	return nil
}

func (req batchTraceRequest) toService() service.BatchRequest {
	out := service.BatchRequest{
		ModelID:   *req.ModelID,
		Timestamp: *req.Timestamp,
		Username:  *req.Username,
		Changes:   make([]workbook.Change, 0, len(*req.Changes)),
	}
	for _, c := range *req.Changes {
		out.Changes = append(out.Changes, workbook.Change{TrackedRangeName: *c.TrackedRangeName, Value: c.Value})
	}
	return out
}

type field struct {
	name  string
	value *string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == nil {
			return workbook.InvalidInput("%s is required", f.name)
		}
	}
	return nil
}
