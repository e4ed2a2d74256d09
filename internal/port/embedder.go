package port

import (
	"context"

	"ctxpipe/internal/domain"
)

// Embedder turns chunk texts into vectors.
type Embedder interface {
	// Embed returns one record per input, in input order.
	Embed(ctx context.Context, chunks []domain.ChunkText) ([]domain.EmbeddingRecord, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex is a store of named vector collections.
type VectorIndex interface {
	// GetCollection describes a collection. The bool is false when it does not exist.
	GetCollection(ctx context.Context, name string) (domain.CollectionInfo, bool, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// CreateCollection creates a collection with a fixed dimension and metric.
	CreateCollection(ctx context.Context, name string, spec CollectionSpec) error

	// DeleteCollection removes a collection and all its points.
	DeleteCollection(ctx context.Context, name string) error

	// Upsert inserts or replaces points keyed by ID.
	Upsert(ctx context.Context, name string, points []VectorPoint) error
}

// CollectionSpec configures a new collection.
type CollectionSpec struct {
	Dimension   int
	Distance    domain.Distance
	OnDisk      bool
	HNSWM       int
	EFConstruct int
}

// VectorPoint is a vector to be stored.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}
