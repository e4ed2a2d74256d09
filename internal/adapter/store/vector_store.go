package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

type storedPoint struct {
	Vector  []float32      `json:"v"`
	Payload map[string]any `json:"p,omitempty"`
}

// Upsert writes points into a collection, replacing points with the same ID.
// Every vector must match the collection dimension; on mismatch nothing is written.
func (s *BoltIndex) Upsert(_ context.Context, name string, points []port.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if c == nil {
			return fmt.Errorf("collection %s not found", name)
		}

		var meta collectionMeta
		if err := json.Unmarshal(c.Get(keyCollection), &meta); err != nil {
			return fmt.Errorf("failed to read collection %s: %w", name, err)
		}

		for _, p := range points {
			if len(p.Vector) != meta.Dimension {
				return fmt.Errorf("%w: collection %s expects %d, got %d for point %s",
					domain.ErrDimensionMismatch, name, meta.Dimension, len(p.Vector), p.ID)
			}
		}

		b := c.Bucket(bucketPoints)
		for _, p := range points {
			data, err := json.Marshal(storedPoint{Vector: p.Vector, Payload: p.Payload})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of points in a collection.
func (s *BoltIndex) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if c == nil {
			return fmt.Errorf("collection %s not found", name)
		}
		n = c.Bucket(bucketPoints).Stats().KeyN
		return nil
	})
	return n, err
}
