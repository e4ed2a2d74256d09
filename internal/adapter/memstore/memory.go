package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var _ port.VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex is an in-process VectorIndex. It backs tests and dry
// inspections where no vector service is available.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memCollection

	// Calls records mutating operations in order, e.g. "create:docs".
	Calls []string
}

type memCollection struct {
	info   domain.CollectionInfo
	points map[string]port.VectorPoint
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		collections: make(map[string]*memCollection),
	}
}

// Seed registers a collection with an arbitrary description, including
// unknown dimension or distance.
func (s *MemoryIndex) Seed(info domain.CollectionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[info.Name] = &memCollection{info: info, points: make(map[string]port.VectorPoint)}
}

func (s *MemoryIndex) GetCollection(_ context.Context, name string) (domain.CollectionInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionInfo{}, false, nil
	}
	return c.info, true, nil
}

func (s *MemoryIndex) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryIndex) CreateCollection(_ context.Context, name string, spec port.CollectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	s.collections[name] = &memCollection{
		info:   domain.CollectionInfo{Name: name, Dimension: spec.Dimension, Distance: spec.Distance},
		points: make(map[string]port.VectorPoint),
	}
	s.Calls = append(s.Calls, "create:"+name)
	return nil
}

func (s *MemoryIndex) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	s.Calls = append(s.Calls, "delete:"+name)
	return nil
}

func (s *MemoryIndex) Upsert(_ context.Context, name string, points []port.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s not found", name)
	}
	if c.info.Dimension > 0 {
		for _, p := range points {
			if len(p.Vector) != c.info.Dimension {
				return fmt.Errorf("%w: collection %s expects %d, got %d",
					domain.ErrDimensionMismatch, name, c.info.Dimension, len(p.Vector))
			}
		}
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	s.Calls = append(s.Calls, "upsert:"+name)
	return nil
}

// Points returns a copy of a collection's points keyed by ID.
func (s *MemoryIndex) Points(name string) map[string]port.VectorPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	out := make(map[string]port.VectorPoint, len(c.points))
	for id, p := range c.points {
		out[id] = p
	}
	return out
}
