package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jask/wbtrace/internal/database"
	"github.com/jask/wbtrace/internal/workbook"
)

// TraceRepo handles the append-only workbook_trace table.
type TraceRepo struct{ db *sql.DB }

func NewTraceRepo(db *sql.DB) *TraceRepo { return &TraceRepo{db: db} }

const traceColumns = `trace_id, model_id, timestamp, tracked_range_name, username, value, created_at`

func (r *TraceRepo) Append(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	value, err := json.Marshal(t.Value)
	if err != nil {
		return workbook.Trace{}, fmt.Errorf("encode trace value: %w", err)
	}
	t.CreatedAt = database.Now()
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO workbook_trace(model_id, timestamp, tracked_range_name, username, value, created_at)
	VALUES(?, ?, ?, ?, ?, ?)
	`, t.ModelID, t.Timestamp, t.TrackedRangeName, t.Username, string(value), t.CreatedAt)
	if err != nil {
		return workbook.Trace{}, err
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return workbook.Trace{}, err
	}
	return t, nil
}

func (r *TraceRepo) ListByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	return r.query(ctx, `SELECT `+traceColumns+` FROM workbook_trace WHERE model_id = ? ORDER BY timestamp DESC, trace_id DESC LIMIT ?`, modelID, limit)
}

func (r *TraceRepo) List(ctx context.Context, limit int) ([]workbook.Trace, error) {
	return r.query(ctx, `SELECT `+traceColumns+` FROM workbook_trace ORDER BY trace_id DESC LIMIT ?`, limit)
}

func (r *TraceRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workbook_trace`).Scan(&n)
	return n, err
}

func (r *TraceRepo) query(ctx context.Context, q string, args ...any) ([]workbook.Trace, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workbook.Trace
	for rows.Next() {
		var t workbook.Trace
		var value string
		if err := rows.Scan(&t.ID, &t.ModelID, &t.Timestamp, &t.TrackedRangeName, &t.Username, &value, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(value), &t.Value); err != nil {
			return nil, fmt.Errorf("decode value of trace %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
