package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ctxpipe/config"
	"ctxpipe/internal/adapter/chunker"
	"ctxpipe/internal/adapter/embedding"
	"ctxpipe/internal/adapter/qdrant"
	"ctxpipe/internal/adapter/store"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
	"ctxpipe/internal/usecase"
)

var (
	embedMode      string
	embedUpsert    bool
	embedReconcile bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Chunk the context tree, embed chunks and optionally upsert vectors",
	Long: `Discover text files under the context dir, split them into fixed-size
chunks and write artifacts/chunks.manifest.json. In remote-api or local-model
mode the chunks are embedded and artifacts/chunks.embeddings.json is written.
With --upsert (or EMBED_QDRANT_UPSERT=1) the vectors are written to the
configured collection, which is created on first use.

Mode defaults to remote-api when OPENAI_API_KEY is set, dry otherwise.

Examples:
  ctxpipe embed                      # Resolve mode from the environment
  ctxpipe embed --mode local         # Use the local model server
  ctxpipe embed --upsert --reconcile # Upsert, recreating a mismatched collection`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVar(&embedMode, "mode", "", "embedding mode: remote-api|local-model|dry")
	embedCmd.Flags().BoolVar(&embedUpsert, "upsert", false, "upsert vectors into the collection")
	embedCmd.Flags().BoolVar(&embedReconcile, "reconcile", false, "recreate the collection on dimension or distance mismatch")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	if embedMode != "" {
		cfg.Embed.Mode = embedMode
	}
	if cmd.Flags().Changed("upsert") {
		cfg.Vector.Upsert = embedUpsert
	}
	if cmd.Flags().Changed("reconcile") {
		cfg.Vector.Reconcile = embedReconcile
	}

	mode, err := cfg.Embed.ResolveMode()
	if err != nil {
		return err
	}
	embedder, err := embedding.New(mode, cfg.Embed)
	if err != nil {
		return err
	}

	if err := cfg.EnsureArtifactsDir(dir); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	var upserter *usecase.UpsertUseCase
	if cfg.Vector.Upsert && embedder != nil {
		index, closeIndex, err := openVectorIndex(cfg, dir)
		if err != nil {
			return err
		}
		defer closeIndex()
		upserter = newUpserter(cfg, index)
	}

	var bar *progressbar.ProgressBar
	var start time.Time

	ecfg := usecase.EmbedConfig{
		BaseDir:            dir,
		ContextDir:         config.Resolve(dir, cfg.Embed.ContextDir),
		Extensions:         cfg.Embed.Extensions,
		Chunker:            chunker.NewCharChunker(cfg.Embed.ChunkTokens),
		Embedder:           embedder,
		Upserter:           upserter,
		ChunkManifest:      cfg.ArtifactPath(dir, cfg.Embed.ChunkManifest),
		EmbeddingsManifest: cfg.ArtifactPath(dir, cfg.Embed.EmbeddingsManifest),
		Logger:             logger,
		OnFile: func(done, total int) {
			if bar == nil {
				start = time.Now()
				bar = newProgressBar(total, "Chunking")
			}
			_ = bar.Set(done)
			bar.Describe(etaDescription("Chunking", start, done, total))
		},
	}

	fmt.Printf("Embed mode: %s\n", mode)
	result, err := usecase.NewEmbedUseCase(ecfg).Run(cmd.Context())
	if result != nil {
		fmt.Printf("\n[OK] wrote %s (%d chunks from %d files)\n", ecfg.ChunkManifest, len(result.Chunks), result.Files)
		if len(result.Embeddings) > 0 {
			fmt.Printf("[OK] wrote %s (%d vectors)\n", ecfg.EmbeddingsManifest, len(result.Embeddings))
		}
	}
	if err != nil {
		return err
	}

	switch {
	case result.Upsert != nil:
		fmt.Printf("[OK] upserted %d points into %s (created=%v recreated=%v)\n",
			result.Upsert.Points, result.Upsert.Collection, result.Upsert.Created, result.Upsert.Recreated)
	case cfg.Vector.Upsert && embedder == nil:
		fmt.Println("[WARN] upsert requested but mode is dry; skipped")
	}
	return nil
}

// openVectorIndex opens the configured vector backend. The returned close
// function is always safe to call.
func openVectorIndex(cfg *config.Config, dir string) (port.VectorIndex, func(), error) {
	timeout := time.Duration(cfg.Vector.TimeoutSeconds) * time.Second

	switch cfg.Vector.Backend {
	case "bolt":
		if err := cfg.EnsureArtifactsDir(dir); err != nil {
			return nil, func() {}, err
		}
		idx, err := store.NewBoltIndex(cfg.ArtifactPath(dir, cfg.Vector.BoltPath))
		if err != nil {
			return nil, func() {}, err
		}
		return idx, func() { idx.Close() }, nil
	default:
		client, err := qdrant.NewClient(cfg.Vector.Endpoint(), cfg.Vector.APIKey, timeout)
		if err != nil {
			return nil, func() {}, err
		}
		return client, func() {}, nil
	}
}

func newUpserter(cfg *config.Config, index port.VectorIndex) *usecase.UpsertUseCase {
	return usecase.NewUpsertUseCase(usecase.UpsertConfig{
		Index:       index,
		Collection:  cfg.Vector.Collection,
		Distance:    domain.ParseDistance(cfg.Vector.Distance),
		Reconcile:   cfg.Vector.Reconcile,
		OnDisk:      cfg.Vector.OnDisk,
		HNSWM:       cfg.Vector.HNSWM,
		EFConstruct: cfg.Vector.EFConstruct,
		Logger:      logger,
	})
}
