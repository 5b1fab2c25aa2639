// Package workbook holds the records shared by the model registry and the
// trace ledger.
package workbook

import "time"

// TrackedRange labels a spreadsheet range whose value changes are reported.
// Range is an opaque range expression such as "Sheet1!A1:A12".
type TrackedRange struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// Model is the latest snapshot of a workbook model.
type Model struct {
	ID            string         `json:"model_id"`
	Name          string         `json:"model_name"`
	Version       int64          `json:"version"`
	TrackedRanges []TrackedRange `json:"tracked_ranges"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no slices with m.
func (m Model) Clone() Model {
	m.TrackedRanges = CloneRanges(m.TrackedRanges)
	return m
}

// HasRange reports whether the model declares a tracked range called name.
func (m Model) HasRange(name string) bool {
	for _, r := range m.TrackedRanges {
		if r.Name == name {
			return true
		}
	}
	return false
}

// CloneRanges copies ranges, returning an empty non-nil slice for nil input.
func CloneRanges(ranges []TrackedRange) []TrackedRange {
	out := make([]TrackedRange, len(ranges))
	copy(out, ranges)
	return out
}

// Trace is one immutable observation of a tracked range value.
type Trace struct {
	ID               int64     `json:"trace_id"`
	ModelID          string    `json:"model_id"`
	Timestamp        string    `json:"timestamp"`
	TrackedRangeName string    `json:"tracked_range_name"`
	Username         string    `json:"username"`
	Value            Value     `json:"value"`
	CreatedAt        time.Time `json:"created_at"`
}

// Change is a single element of a batched trace append.
type Change struct {
	TrackedRangeName string `json:"tracked_range_name"`
	Value            Value  `json:"value"`
}
