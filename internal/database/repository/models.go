package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jask/wbtrace/internal/database"
	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

// ModelRepo handles workbook_model rows.
type ModelRepo struct {
	db *sql.DB
}

func NewModelRepo(db *sql.DB) *ModelRepo {
	return &ModelRepo{db: db}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const modelColumns = `model_id, model_name, version, tracked_ranges, created_at, updated_at`

// Update runs the read-modify-write for id inside one IMMEDIATE transaction,
// so concurrent updates of the same model are serialized by sqlite's write
// lock.
func (r *ModelRepo) Update(ctx context.Context, id string, fn storage.UpdateFunc) (workbook.Model, error) {
	var out workbook.Model
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var current *workbook.Model
		existing, err := getModel(ctx, tx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
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

		now := database.Now()
		if current == nil {
			_, err = tx.ExecContext(ctx, `
			INSERT INTO workbook_model(model_id, model_name, version, tracked_ranges, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			`, id, next.Name, next.Version, string(ranges), now, now)
			next.CreatedAt = now
		} else {
			_, err = tx.ExecContext(ctx, `
			UPDATE workbook_model
			SET model_name = ?, tracked_ranges = ?, version = ?, updated_at = ?
			WHERE model_id = ?
			`, next.Name, string(ranges), next.Version, now, id)
			next.CreatedAt = current.CreatedAt
		}
		if err != nil {
			return fmt.Errorf("write model %s: %w", id, err)
		}
		next.UpdatedAt = now
		out = next
		return nil
	})
	if err != nil {
		return workbook.Model{}, err
	}
	return out, nil
}

func (r *ModelRepo) Get(ctx context.Context, id string) (workbook.Model, error) {
	return getModel(ctx, r.db, id)
}

func (r *ModelRepo) List(ctx context.Context) ([]workbook.Model, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM workbook_model ORDER BY created_at DESC, rowid DESC`)
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

func (r *ModelRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workbook_model`).Scan(&n)
	return n, err
}

func getModel(ctx context.Context, q rowQuerier, id string) (workbook.Model, error) {
	row := q.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM workbook_model WHERE model_id = ?`, id)
	m, err := scanModel(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return workbook.Model{}, storage.ErrNotFound
		}
		return workbook.Model{}, err
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(s scanner) (workbook.Model, error) {
	var m workbook.Model
	var ranges string
	if err := s.Scan(&m.ID, &m.Name, &m.Version, &ranges, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return workbook.Model{}, err
	}
	if err := json.Unmarshal([]byte(ranges), &m.TrackedRanges); err != nil {
		return workbook.Model{}, fmt.Errorf("decode tracked ranges of %s: %w", m.ID, err)
	}
	if m.TrackedRanges == nil {
		m.TrackedRanges = []workbook.TrackedRange{}
	}
	return m, nil
}
