package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var (
	bucketMeta        = []byte("meta")
	bucketCollections = []byte("collections")
	bucketPoints      = []byte("points")
	keyCollection     = []byte("collection")
)

var _ port.VectorIndex = (*BoltIndex)(nil)

// BoltIndex is a local VectorIndex backed by a single bbolt file. Each
// collection is a nested bucket holding its description and its points.
type BoltIndex struct {
	db *bbolt.DB
	mu sync.RWMutex
}

type collectionMeta struct {
	Dimension   int    `json:"dimension"`
	Distance    string `json:"distance"`
	OnDisk      bool   `json:"on_disk,omitempty"`
	HNSWM       int    `json:"hnsw_m,omitempty"`
	EFConstruct int    `json:"ef_construct,omitempty"`
}

func NewBoltIndex(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db %s: %v", domain.ErrBackendUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketCollections} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &BoltIndex{db: db}
	if err := idx.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}

func (s *BoltIndex) GetCollection(_ context.Context, name string) (domain.CollectionInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := domain.CollectionInfo{Name: name, Distance: domain.DistanceUnknown}
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if c == nil {
			return nil
		}
		found = true

		data := c.Get(keyCollection)
		if data == nil {
			return nil
		}
		var meta collectionMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			// Unreadable description: report the collection with unknown markers.
			return nil
		}
		info.Dimension = meta.Dimension
		info.Distance = domain.ParseDistance(meta.Distance)
		return nil
	})
	return info, found, err
}

func (s *BoltIndex) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(k, v []byte) error {
			if v == nil {
				names = append(names, string(k))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *BoltIndex) CreateCollection(_ context.Context, name string, spec port.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: collection %s needs a positive dimension", domain.ErrConfiguration, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := collectionMeta{
		Dimension:   spec.Dimension,
		Distance:    string(spec.Distance),
		OnDisk:      spec.OnDisk,
		HNSWM:       spec.HNSWM,
		EFConstruct: spec.EFConstruct,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) != nil {
			return fmt.Errorf("collection %s already exists", name)
		}
		c, err := root.CreateBucket([]byte(name))
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		if _, err := c.CreateBucket(bucketPoints); err != nil {
			return err
		}
		return c.Put(keyCollection, data)
	})
}

func (s *BoltIndex) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketCollections).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
