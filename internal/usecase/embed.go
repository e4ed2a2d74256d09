package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ctxpipe/internal/adapter/chunker"
	ctxfs "ctxpipe/internal/adapter/fs"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

// EmbedUseCase runs discovery, chunking, embedding and the optional upsert.
type EmbedUseCase struct {
	baseDir            string
	contextDir         string
	extensions         []string
	chunker            port.Chunker
	embedder           port.Embedder
	upserter           *UpsertUseCase
	chunkManifest      string
	embeddingsManifest string
	logger             *slog.Logger
	onFile             func(done, total int)
}

// EmbedConfig holds dependencies for EmbedUseCase.
type EmbedConfig struct {
	// BaseDir is the directory manifest file paths are relative to.
	BaseDir    string
	ContextDir string
	Extensions []string
	Chunker    port.Chunker
	// Embedder is nil in dry mode.
	Embedder port.Embedder
	// Upserter is nil when upsert is off.
	Upserter           *UpsertUseCase
	ChunkManifest      string
	EmbeddingsManifest string
	Logger             *slog.Logger
	OnFile             func(done, total int)
}

// EmbedResult summarizes a pipeline run.
type EmbedResult struct {
	Files      int
	Chunks     []domain.ChunkRecord
	Embeddings []domain.EmbeddingRecord
	Upsert     *domain.UpsertResult
}

func NewEmbedUseCase(cfg EmbedConfig) *EmbedUseCase {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Chunker
	if c == nil {
		c = chunker.NewCharChunker(chunker.DefaultChunkTokens)
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = ctxfs.DefaultTextExts
	}
	return &EmbedUseCase{
		baseDir:            cfg.BaseDir,
		contextDir:         cfg.ContextDir,
		extensions:         exts,
		chunker:            c,
		embedder:           cfg.Embedder,
		upserter:           cfg.Upserter,
		chunkManifest:      cfg.ChunkManifest,
		embeddingsManifest: cfg.EmbeddingsManifest,
		logger:             logger,
		onFile:             cfg.OnFile,
	}
}

// Run executes the pipeline. The chunk manifest is always written; the
// embeddings manifest only when an embedder is configured. Both are on disk
// before any upsert is attempted.
func (u *EmbedUseCase) Run(ctx context.Context) (*EmbedResult, error) {
	records, texts, files, err := u.Chunk()
	if err != nil {
		return nil, err
	}
	result := &EmbedResult{Files: files, Chunks: records}

	if err := writeJSON(u.chunkManifest, records); err != nil {
		return nil, err
	}
	u.logger.Info("wrote chunk manifest", "path", u.chunkManifest, "files", files, "chunks", len(records))

	if u.embedder == nil {
		if u.upserter != nil {
			u.logger.Warn("dry mode: skipping vector upsert")
		}
		return result, nil
	}

	u.logger.Info("embedding chunks", "model", u.embedder.ModelName(), "chunks", len(texts))
	embeddings, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("embedding failed: %w", err)
	}
	if embeddings == nil {
		embeddings = []domain.EmbeddingRecord{}
	}
	result.Embeddings = embeddings

	if err := writeJSON(u.embeddingsManifest, embeddings); err != nil {
		return result, err
	}
	u.logger.Info("wrote embeddings manifest", "path", u.embeddingsManifest, "vectors", len(embeddings))

	if u.upserter == nil {
		return result, nil
	}
	up, err := u.upserter.Upsert(ctx, embeddings)
	if err != nil {
		return result, err
	}
	result.Upsert = up
	return result, nil
}

// Chunk discovers text files under the context dir and splits them. It
// returns the manifest records, the texts to embed, and the number of files
// read. A missing context dir yields no chunks.
func (u *EmbedUseCase) Chunk() ([]domain.ChunkRecord, []domain.ChunkText, int, error) {
	paths, err := ctxfs.TextFiles(u.contextDir, u.extensions)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			u.logger.Warn("context dir does not exist", "path", u.contextDir)
			return []domain.ChunkRecord{}, nil, 0, nil
		}
		return nil, nil, 0, fmt.Errorf("failed to list %s: %w", u.contextDir, err)
	}

	records := []domain.ChunkRecord{}
	var texts []domain.ChunkText

	for i, p := range paths {
		if u.onFile != nil {
			u.onFile(i+1, len(paths))
		}

		content, err := ctxfs.ReadFile(p)
		if err != nil {
			u.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		name := u.relName(p)
		for idx, piece := range u.chunker.Chunk(content) {
			id := chunker.ChunkID(name, idx)
			records = append(records, domain.ChunkRecord{
				File:  name,
				Chunk: idx,
				ID:    id,
				Len:   utf8.RuneCountInString(piece),
			})
			texts = append(texts, domain.ChunkText{ID: id, Text: piece})
		}
	}

	return records, texts, len(paths), nil
}

func (u *EmbedUseCase) relName(path string) string {
	if u.baseDir != "" {
		if rel, err := filepath.Rel(u.baseDir, path); err == nil && filepath.IsLocal(rel) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
