// Package boltstore provides a BoltDB-backed storage backend.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jask/wbtrace/internal/storage"
	"github.com/jask/wbtrace/internal/workbook"
)

const (
	modelBucket = "workbook_model"
	traceBucket = "workbook_trace"
)

// Store persists models and traces in a single BoltDB file. Bolt allows one
// read-write transaction at a time, which serializes model updates.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

type modelRecord struct {
	Seq   uint64         `json:"seq"`
	Model workbook.Model `json:"model"`
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpdateModel(ctx context.Context, id string, fn storage.UpdateFunc) (workbook.Model, error) {
	if err := ctx.Err(); err != nil {
		return workbook.Model{}, err
	}
	var out workbook.Model
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(modelBucket))
		if bucket == nil {
			return fmt.Errorf("model bucket is missing")
		}

		var current *workbook.Model
		var rec modelRecord
		if payload := bucket.Get([]byte(id)); payload != nil {
			if err := json.Unmarshal(payload, &rec); err != nil {
				return fmt.Errorf("unmarshal model %s: %w", id, err)
			}
			current = &rec.Model
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.ID = id
		next.TrackedRanges = workbook.CloneRanges(next.TrackedRanges)
		now := time.Now().UTC()
		next.UpdatedAt = now
		if current == nil {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq = seq
			next.CreatedAt = now
		} else {
			next.CreatedAt = current.CreatedAt
		}
		rec.Model = next

		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal model %s: %w", id, err)
		}
		if err := bucket.Put([]byte(id), payload); err != nil {
			return err
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
	if err := ctx.Err(); err != nil {
		return workbook.Model{}, err
	}
	var rec modelRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(modelBucket)).Get([]byte(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("unmarshal model %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return workbook.Model{}, err
	}
	return rec.Model, nil
}

func (s *Store) ListModels(ctx context.Context) ([]workbook.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []modelRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelBucket)).ForEach(func(k, v []byte) error {
			var rec modelRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal model %s: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq > recs[j].Seq })
	out := make([]workbook.Model, len(recs))
	for i, rec := range recs {
		out[i] = rec.Model
	}
	return out, nil
}

func (s *Store) CountModels(ctx context.Context) (int, error) {
	return s.count(modelBucket)
}

func (s *Store) AppendTrace(ctx context.Context, t workbook.Trace) (workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return workbook.Trace{}, err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(traceBucket))
		if bucket == nil {
			return fmt.Errorf("trace bucket is missing")
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		t.ID = int64(seq)
		t.CreatedAt = time.Now().UTC()
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal trace: %w", err)
		}
		return bucket.Put(traceKey(seq), payload)
	})
	if err != nil {
		return workbook.Trace{}, err
	}
	return t, nil
}

func (s *Store) ListTracesByModel(ctx context.Context, modelID string, limit int) ([]workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.scanTraces(-1, func(t workbook.Trace) bool { return t.ModelID == modelID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListTraces(ctx context.Context, limit int) ([]workbook.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.scanTraces(limit, nil)
}

func (s *Store) CountTraces(ctx context.Context) (int, error) {
	return s.count(traceBucket)
}

// scanTraces walks traces newest first, keeping those accepted by keep, until
// limit are collected. A negative limit collects everything.
func (s *Store) scanTraces(limit int, keep func(workbook.Trace) bool) ([]workbook.Trace, error) {
	var out []workbook.Trace
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(traceBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit >= 0 && len(out) >= limit {
				break
			}
			var t workbook.Trace
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshal trace %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if keep == nil || keep(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) count(bucket string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(bucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{modelBucket, traceBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func traceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
