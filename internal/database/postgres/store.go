// Package postgres provides a PostgreSQL storage backend built on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// Store persists models and traces in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects to url and verifies the connection. Migrations are applied
// separately by database.RunPostgresMigrations.
func Open(ctx context.Context, url string) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const modelColumns = `model_id, model_name, version, tracked_ranges, created_at, updated_at`

// UpdateModel takes a transaction-scoped advisory lock on the id before
// reading, so racing callers serialize even when the row does not exist yet.
func (s *Store) UpdateModel(ctx context.Context, id string, fn storage.UpdateFunc) (workbook.Model, error) {
	var out workbook.Model
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return fmt.Errorf("lock model %s: %w", id, err)
		}

		var current *workbook.Model
		existing, err := scanModel(tx.QueryRow(ctx, `SELECT `+modelColumns+` FROM workbook_model WHERE model_id = $1 FOR UPDATE`, id))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			current = &existing
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.ID = id
		ranges, err := json.Marshal(workbook.CloneRanges(next.TrackedRanges))
		if err != nil {
			return fmt.Errorf("encode tracked ranges: %w", err)
		}

		if current == nil {
			err = tx.QueryRow(ctx, `
				INSERT INTO workbook_model (model_id, model_name, version, tracked_ranges)
				VALUES ($1, $2, $3, $4::jsonb)
				RETURNING created_at, updated_at`,
				id, next.Name, next.Version, string(ranges),
			).Scan(&next.CreatedAt, &next.UpdatedAt)
		} else {
			err = tx.QueryRow(ctx, `
				UPDATE workbook_model
				SET model_name = $2, tracked_ranges = $3::jsonb, version = $4, updated_at = now()
				WHERE model_id = $1
				RETURNING created_at, updated_at`,
				id, next.Name, string(ranges), next.Version,
			).Scan(&next.CreatedAt, &next.UpdatedAt)
		}
		if err != nil {
			return fmt.Errorf("write model %s: %w", id, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return workbook.Model{}, err
	}
	return out, nil
}

func (s *Store) GetModel(ctx context.Context, id string) (workbook.Model, error) {
	m, err := scanModel(s.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM workbook_model WHERE model_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return workbook.Model{}, storage.ErrNotFound
	}
	return m, err
}

func (s *Store) ListModels(ctx context.Context) ([]workbook.Model, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+modelColumns+` FROM workbook_model ORDER BY created_at DESC, model_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workbook.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountModels(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workbook_model`).Scan(&n)
	return n, err
}

func (s *Store) AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	value, err := json.Marshal(t.Value)
	if err != nil {
		return workbook.Trace{}, fmt.Errorf("encode trace value: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO workbook_trace (model_id, timestamp, tracked_range_name, username, value)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING trace_id, created_at`,
		t.ModelID, t.Timestamp, t.TrackedRangeName, t.Username, string(value),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return workbook.Trace{}, err
	}
	return t, nil
}

const traceColumns = `trace_id, model_id, timestamp, tracked_range_name, username, value, created_at`

func (s *Store) ListTracesByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	return s.queryTraces(ctx, `SELECT `+traceColumns+` FROM workbook_trace WHERE model_id = $1 ORDER BY timestamp DESC, trace_id DESC LIMIT $2`, modelID, limit)
}

func (s *Store) ListTraces(ctx context.Context, limit int) ([]workbook.Trace, error) {
	return s.queryTraces(ctx, `SELECT `+traceColumns+` FROM workbook_trace ORDER BY trace_id DESC LIMIT $1`, limit)
}

func (s *Store) CountTraces(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workbook_trace`).Scan(&n)
	return n, err
}

func (s *Store) queryTraces(ctx context.Context, q string, args ...any) ([]workbook.Trace, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workbook.Trace
	for rows.Next() {
		var t workbook.Trace
		var value []byte
		if err := rows.Scan(&t.ID, &t.ModelID, &t.Timestamp, &t.TrackedRangeName, &t.Username, &value, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(value, &t.Value); err != nil {
			return nil, fmt.Errorf("decode value of trace %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanModel(row pgx.Row) (workbook.Model, error) {
	var m workbook.Model
	var ranges []byte
	if err := row.Scan(&m.ID, &m.Name, &m.Version, &ranges, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return workbook.Model{}, err
	}
	if err := json.Unmarshal(ranges, &m.TrackedRanges); err != nil {
		return workbook.Model{}, fmt.Errorf("decode tracked ranges of %s: %w", m.ID, err)
	}
	if m.TrackedRanges == nil {
		m.TrackedRanges = []workbook.TrackedRange{}
	}
	return m, nil
}
