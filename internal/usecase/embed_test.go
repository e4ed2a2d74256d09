package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpipe/internal/adapter/chunker"
	"ctxpipe/internal/adapter/memstore"
	"ctxpipe/internal/domain"
)

type stubEmbedder struct {
	dim   int
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, chunks []domain.ChunkText) ([]domain.EmbeddingRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		v := make([]float32, s.dim)
		v[0] = float32(i + 1)
		out[i] = domain.EmbeddingRecord{ID: c.ID, Embedding: v, Len: len(c.Text)}
	}
	return out, nil
}

func (s *stubEmbedder) ModelName() string { return "stub" }

func contextTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.md":       strings.Repeat("a", 600),
		"b.md":       "  \n\t \n",
		"c.txt":      strings.Repeat("c", 3500),
		"skip.bin":   "binary",
		"nested/d.X": "ignored extension",
	})
	return root
}

func newEmbed(root string, artifacts string, e *stubEmbedder, up *UpsertUseCase) *EmbedUseCase {
	cfg := EmbedConfig{
		BaseDir:            root,
		ContextDir:         root,
		Chunker:            chunker.NewCharChunker(800),
		Upserter:           up,
		ChunkManifest:      filepath.Join(artifacts, "chunks.manifest.json"),
		EmbeddingsManifest: filepath.Join(artifacts, "chunks.embeddings.json"),
	}
	if e != nil {
		cfg.Embedder = e
	}
	return NewEmbedUseCase(cfg)
}

func readManifest[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestEmbedDryRunChunkManifest(t *testing.T) {
	root := contextTree(t)
	artifacts := t.TempDir()

	result, err := newEmbed(root, artifacts, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Embeddings)

	records := readManifest[[]domain.ChunkRecord](t, filepath.Join(artifacts, "chunks.manifest.json"))
	require.Len(t, records, 3)

	assert.Equal(t, domain.ChunkRecord{File: "a.md", Chunk: 0, ID: chunker.ChunkID("a.md", 0), Len: 600}, records[0])
	assert.Equal(t, domain.ChunkRecord{File: "c.txt", Chunk: 0, ID: chunker.ChunkID("c.txt", 0), Len: 3200}, records[1])
	assert.Equal(t, domain.ChunkRecord{File: "c.txt", Chunk: 1, ID: chunker.ChunkID("c.txt", 1), Len: 300}, records[2])

	_, err = os.Stat(filepath.Join(artifacts, "chunks.embeddings.json"))
	assert.True(t, os.IsNotExist(err), "dry mode writes no embeddings manifest")
}

func TestEmbedStableIDsAcrossRuns(t *testing.T) {
	root := contextTree(t)

	first, err := newEmbed(root, t.TempDir(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := newEmbed(root, t.TempDir(), nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
}

func TestEmbedWritesEmbeddingsManifest(t *testing.T) {
	root := contextTree(t)
	artifacts := t.TempDir()
	stub := &stubEmbedder{dim: 4}

	result, err := newEmbed(root, artifacts, stub, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls, "all texts go to the backend in one call")
	require.Len(t, result.Embeddings, 3)

	records := readManifest[[]domain.EmbeddingRecord](t, filepath.Join(artifacts, "chunks.embeddings.json"))
	require.Len(t, records, 3)
	assert.Equal(t, result.Chunks[2].ID, records[2].ID)
	assert.Equal(t, 300, records[2].Len)
}

func TestEmbedBackendFailureKeepsChunkManifest(t *testing.T) {
	root := contextTree(t)
	artifacts := t.TempDir()
	stub := &stubEmbedder{err: domain.ErrBackendUnavailable}

	_, err := newEmbed(root, artifacts, stub, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))

	_, statErr := os.Stat(filepath.Join(artifacts, "chunks.manifest.json"))
	assert.NoError(t, statErr)
}

func TestEmbedUpsertFailureKeepsManifests(t *testing.T) {
	root := contextTree(t)
	artifacts := t.TempDir()

	index := memstore.NewMemoryIndex()
	index.Seed(domain.CollectionInfo{Name: "docs", Dimension: 8, Distance: domain.DistanceCosine})
	up := NewUpsertUseCase(UpsertConfig{Index: index, Collection: "docs"})

	_, err := newEmbed(root, artifacts, &stubEmbedder{dim: 4}, up).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	for _, name := range []string{"chunks.manifest.json", "chunks.embeddings.json"} {
		_, statErr := os.Stat(filepath.Join(artifacts, name))
		assert.NoError(t, statErr, name)
	}
	assert.Empty(t, index.Points("docs"))
}

func TestEmbedUpsertCreatesCollection(t *testing.T) {
	root := contextTree(t)
	index := memstore.NewMemoryIndex()
	up := NewUpsertUseCase(UpsertConfig{Index: index, Collection: "docs"})

	result, err := newEmbed(root, t.TempDir(), &stubEmbedder{dim: 4}, up).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Upsert)
	assert.True(t, result.Upsert.Created)
	assert.Equal(t, 3, result.Upsert.Points)
	assert.Len(t, index.Points("docs"), 3)
}

func TestEmbedMissingContextDir(t *testing.T) {
	artifacts := t.TempDir()
	u := NewEmbedUseCase(EmbedConfig{
		ContextDir:    filepath.Join(t.TempDir(), "missing"),
		ChunkManifest: filepath.Join(artifacts, "chunks.manifest.json"),
	})

	result, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)

	records := readManifest[[]domain.ChunkRecord](t, filepath.Join(artifacts, "chunks.manifest.json"))
	assert.Empty(t, records)
}

type nilEmbedder struct{}

func (nilEmbedder) Embed(context.Context, []domain.ChunkText) ([]domain.EmbeddingRecord, error) {
	return nil, nil
}

func (nilEmbedder) ModelName() string { return "nil" }

func TestEmbedNoChunksWritesEmptyArrays(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"only.md": " \n\t\n"})
	artifacts := t.TempDir()

	u := NewEmbedUseCase(EmbedConfig{
		BaseDir:            root,
		ContextDir:         root,
		Chunker:            chunker.NewCharChunker(800),
		Embedder:           nilEmbedder{},
		ChunkManifest:      filepath.Join(artifacts, "chunks.manifest.json"),
		EmbeddingsManifest: filepath.Join(artifacts, "chunks.embeddings.json"),
	})

	result, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Files)
	assert.NotNil(t, result.Embeddings)

	for _, name := range []string{"chunks.manifest.json", "chunks.embeddings.json"} {
		data, err := os.ReadFile(filepath.Join(artifacts, name))
		require.NoError(t, err)
		assert.Equal(t, "[]", strings.TrimSpace(string(data)), name)
	}
}
