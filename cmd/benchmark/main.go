package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"ctxpipe/config"
	"ctxpipe/internal/adapter/chunker"
	"ctxpipe/internal/adapter/embedding"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Project directory")
	mode := flag.String("mode", "", "Embed mode (remote-api, local-model); default from config")
	limit := flag.Int("n", 64, "Maximum chunks to embed")
	flag.Parse()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading environment: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Embed.Mode = *mode
	}

	resolved, err := cfg.Embed.ResolveMode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	embedder, err := embedding.New(resolved, cfg.Embed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}
	if embedder == nil {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -mode local-model")
		fmt.Println("\nMeasures the configured embedding backend against the context tree:")
		fmt.Println("  1. Latency and throughput (chunks per second)")
		fmt.Println("  2. Vector shape (dimension, norms)")
		fmt.Println("  3. Neighbour similarity (chunks of one file vs across files)")
		os.Exit(1)
	}

	uc := usecase.NewEmbedUseCase(usecase.EmbedConfig{
		BaseDir:    *dir,
		ContextDir: config.Resolve(*dir, cfg.Embed.ContextDir),
		Extensions: cfg.Embed.Extensions,
		Chunker:    chunker.NewCharChunker(cfg.Embed.ChunkTokens),
	})
	records, texts, files, err := uc.Chunk()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chunking error: %v\n", err)
		os.Exit(1)
	}
	if len(texts) == 0 {
		fmt.Fprintf(os.Stderr, "No chunks under %s - run 'ctxpipe sync --apply' first\n", cfg.Embed.ContextDir)
		os.Exit(1)
	}
	if len(texts) > *limit {
		records, texts = records[:*limit], texts[:*limit]
	}

	fmt.Println("EMBEDDING BACKEND BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Mode:   %s\n", resolved)
	fmt.Printf("Model:  %s\n", embedder.ModelName())
	fmt.Printf("Chunks: %d (from %d files)\n\n", len(texts), files)

	start := time.Now()
	vectors, err := embedder.Embed(context.Background(), texts)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Elapsed:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput: %.1f chunks/sec\n", float64(len(vectors))/elapsed.Seconds())
	fmt.Printf("Dimension:  %d\n", len(vectors[0].Embedding))

	minNorm, maxNorm := math.Inf(1), 0.0
	for _, v := range vectors {
		n := norm(v.Embedding)
		minNorm = math.Min(minNorm, n)
		maxNorm = math.Max(maxNorm, n)
	}
	fmt.Printf("Norms:      %.3f - %.3f\n", minNorm, maxNorm)

	same, cross := neighbourSimilarity(records, vectors)
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Adjacent chunks, same file:  %s\n", formatScore(same))
	fmt.Printf("  Adjacent chunks, other file: %s\n", formatScore(cross))

	switch {
	case math.IsNaN(same) || math.IsNaN(cross):
		fmt.Println("  Status: N/A - need chunks from several files, some with multiple chunks")
	case same > cross:
		fmt.Println("  Status: GOOD - chunks of one file cluster together")
	default:
		fmt.Println("  Status: POOR - model does not separate files")
	}
}

// neighbourSimilarity averages cosine similarity of consecutive chunks,
// split by whether they come from the same file.
func neighbourSimilarity(records []domain.ChunkRecord, vectors []domain.EmbeddingRecord) (float64, float64) {
	var sameSum, crossSum float64
	var sameN, crossN int
	for i := 1; i < len(vectors); i++ {
		s := cosine(vectors[i-1].Embedding, vectors[i].Embedding)
		if records[i-1].File == records[i].File {
			sameSum += s
			sameN++
		} else {
			crossSum += s
			crossN++
		}
	}
	return mean(sameSum, sameN), mean(crossSum, crossN)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func formatScore(s float64) string {
	if math.IsNaN(s) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", s)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}
