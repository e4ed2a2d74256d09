package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

func openIndex(t *testing.T) (*BoltIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	idx, err := NewBoltIndex(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, path
}

func TestBoltIndexCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	_, found, err := idx.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, found)

	spec := port.CollectionSpec{Dimension: 3, Distance: domain.DistanceCosine, HNSWM: 16, EFConstruct: 128}
	require.NoError(t, idx.CreateCollection(ctx, "docs", spec))
	assert.Error(t, idx.CreateCollection(ctx, "docs", spec), "second create must fail")

	info, found, err := idx.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.CollectionInfo{Name: "docs", Dimension: 3, Distance: domain.DistanceCosine}, info)

	require.NoError(t, idx.CreateCollection(ctx, "alpha", spec))
	names, err := idx.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "docs"}, names)

	require.NoError(t, idx.DeleteCollection(ctx, "docs"))
	require.NoError(t, idx.DeleteCollection(ctx, "docs"), "deleting a missing collection is a no-op")
	_, found, err = idx.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltIndexUpsert(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)
	require.NoError(t, idx.CreateCollection(ctx, "docs", port.CollectionSpec{Dimension: 2, Distance: domain.DistanceCosine}))

	points := []port.VectorPoint{
		{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{"chunk_id": "a"}},
		{ID: "p2", Vector: []float32{0, 1}},
	}
	require.NoError(t, idx.Upsert(ctx, "docs", points))
	require.NoError(t, idx.Upsert(ctx, "docs", points[:1]))

	n, err := idx.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "upsert replaces by id")
}

func TestBoltIndexUpsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)
	require.NoError(t, idx.CreateCollection(ctx, "docs", port.CollectionSpec{Dimension: 2, Distance: domain.DistanceCosine}))

	err := idx.Upsert(ctx, "docs", []port.VectorPoint{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	n, err := idx.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written on mismatch")
}

func TestBoltIndexUpsertMissingCollection(t *testing.T) {
	idx, _ := openIndex(t)
	err := idx.Upsert(context.Background(), "nope", []port.VectorPoint{{ID: "x", Vector: []float32{1}}})
	assert.Error(t, err)
}

func TestBoltIndexCreateRejectsZeroDimension(t *testing.T) {
	idx, _ := openIndex(t)
	err := idx.CreateCollection(context.Background(), "docs", port.CollectionSpec{Distance: domain.DistanceDot})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestBoltIndexReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	idx, err := NewBoltIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.CreateCollection(ctx, "docs", port.CollectionSpec{Dimension: 4, Distance: domain.DistanceEuclid}))
	require.NoError(t, idx.Close())

	idx, err = NewBoltIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	info, found, err := idx.GetCollection(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, info.Dimension)
	assert.Equal(t, domain.DistanceEuclid, info.Distance)

	schema, err := idx.GetSchemaInfo()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, schema.Version)
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	idx, path := openIndex(t)
	require.NoError(t, idx.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion + 1}))
	require.NoError(t, idx.Close())

	_, err := NewBoltIndex(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}
