package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

// pointNamespace scopes the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ctxpipe:chunk"))

// PointID maps a chunk id onto the UUID used as the vector store key.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// UpsertUseCase ensures the target collection and writes vectors into it.
type UpsertUseCase struct {
	index       port.VectorIndex
	collection  string
	distance    domain.Distance
	reconcile   bool
	onDisk      bool
	hnswM       int
	efConstruct int
	logger      *slog.Logger
}

// UpsertConfig holds dependencies for UpsertUseCase.
type UpsertConfig struct {
	Index      port.VectorIndex
	Collection string
	Distance   domain.Distance
	// Reconcile recreates a collection whose dimension or distance differs.
	Reconcile   bool
	OnDisk      bool
	HNSWM       int
	EFConstruct int
	Logger      *slog.Logger
}

func NewUpsertUseCase(cfg UpsertConfig) *UpsertUseCase {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	distance := cfg.Distance
	if distance == "" {
		distance = domain.DistanceCosine
	}
	return &UpsertUseCase{
		index:       cfg.Index,
		collection:  cfg.Collection,
		distance:    distance,
		reconcile:   cfg.Reconcile,
		onDisk:      cfg.OnDisk,
		hnswM:       cfg.HNSWM,
		efConstruct: cfg.EFConstruct,
		logger:      logger,
	}
}

// EnsureResult reports what EnsureCollection did.
type EnsureResult struct {
	Info      domain.CollectionInfo
	Created   bool
	Recreated bool
}

// EnsureCollection makes sure the collection exists with dimension dim.
// An existing collection is kept unless reconcile is on and its known
// dimension or distance differs. A known dimension mismatch without
// reconcile is an error. Calling it twice with the same input is a no-op
// the second time.
func (u *UpsertUseCase) EnsureCollection(ctx context.Context, dim int) (*EnsureResult, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: collection dimension must be positive, got %d", domain.ErrConfiguration, dim)
	}

	info, found, err := u.index.GetCollection(ctx, u.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to describe collection %s: %w", u.collection, err)
	}

	if !found {
		if err := u.create(ctx, dim); err != nil {
			return nil, err
		}
		u.logger.Info("created collection", "collection", u.collection, "dimension", dim, "distance", u.distance)
		return &EnsureResult{Info: u.want(dim), Created: true}, nil
	}

	if !info.Known() {
		u.logger.Warn("collection description incomplete; keeping it as is",
			"collection", u.collection, "dimension", info.Dimension, "distance", info.Distance)
	}

	dimMismatch := info.Dimension > 0 && info.Dimension != dim
	distMismatch := info.Distance != domain.DistanceUnknown && info.Distance != u.distance

	if !dimMismatch && !distMismatch {
		return &EnsureResult{Info: info}, nil
	}

	if !u.reconcile {
		if dimMismatch {
			return nil, fmt.Errorf("%w: collection %s has dimension %d, vectors have %d (enable reconcile to recreate)",
				domain.ErrDimensionMismatch, u.collection, info.Dimension, dim)
		}
		u.logger.Warn("collection distance differs from configuration",
			"collection", u.collection, "have", info.Distance, "want", u.distance)
		return &EnsureResult{Info: info}, nil
	}

	u.logger.Warn("recreating collection",
		"collection", u.collection,
		"have_dimension", info.Dimension, "want_dimension", dim,
		"have_distance", info.Distance, "want_distance", u.distance)
	if err := u.index.DeleteCollection(ctx, u.collection); err != nil {
		return nil, fmt.Errorf("failed to delete collection %s: %w", u.collection, err)
	}
	if err := u.create(ctx, dim); err != nil {
		return nil, err
	}
	return &EnsureResult{Info: u.want(dim), Recreated: true}, nil
}

// Upsert writes records into the collection, creating it from the first
// record's dimension when missing.
func (u *UpsertUseCase) Upsert(ctx context.Context, records []domain.EmbeddingRecord) (*domain.UpsertResult, error) {
	result := &domain.UpsertResult{Collection: u.collection}
	if len(records) == 0 {
		u.logger.Warn("no vectors to upsert", "collection", u.collection)
		return result, nil
	}

	dim := len(records[0].Embedding)
	for _, r := range records {
		if len(r.Embedding) != dim {
			return nil, fmt.Errorf("%w: record %s has %d dimensions, first record has %d",
				domain.ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}

	ensured, err := u.EnsureCollection(ctx, dim)
	if err != nil {
		return nil, err
	}
	result.Created = ensured.Created
	result.Recreated = ensured.Recreated

	points := make([]port.VectorPoint, len(records))
	for i, r := range records {
		points[i] = port.VectorPoint{
			ID:     PointID(r.ID),
			Vector: r.Embedding,
			Payload: map[string]any{
				"chunk_id": r.ID,
				"len":      r.Len,
			},
		}
	}

	if err := u.index.Upsert(ctx, u.collection, points); err != nil {
		return nil, fmt.Errorf("failed to upsert into %s: %w", u.collection, err)
	}
	result.Points = len(points)

	u.logger.Info("upserted vectors", "collection", u.collection, "points", result.Points, "created", result.Created)
	return result, nil
}

func (u *UpsertUseCase) create(ctx context.Context, dim int) error {
	spec := port.CollectionSpec{
		Dimension:   dim,
		Distance:    u.distance,
		OnDisk:      u.onDisk,
		HNSWM:       u.hnswM,
		EFConstruct: u.efConstruct,
	}
	if err := u.index.CreateCollection(ctx, u.collection, spec); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", u.collection, err)
	}
	return nil
}

func (u *UpsertUseCase) want(dim int) domain.CollectionInfo {
	return domain.CollectionInfo{Name: u.collection, Dimension: dim, Distance: u.distance}
}
