package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"ctxpipe/internal/port"
)

// CharsPerToken is the fixed character-per-token approximation.
const CharsPerToken = 4

// DefaultChunkTokens is the token budget used when none is configured.
const DefaultChunkTokens = 800

var _ port.Chunker = (*CharChunker)(nil)

// CharChunker splits text into contiguous, non-overlapping slices of at most
// maxTokens*CharsPerToken characters (Unicode code points).
type CharChunker struct {
	maxChars int
}

func NewCharChunker(maxTokens int) *CharChunker {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	return &CharChunker{maxChars: maxTokens * CharsPerToken}
}

// Chunk returns nil for empty or whitespace-only text, and at least one
// chunk otherwise. Concatenating the result yields text.
func (c *CharChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+c.maxChars-1)/c.maxChars)
	for start := 0; start < len(runes); start += c.maxChars {
		end := start + c.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// MaxChars returns the per-chunk character budget.
func (c *CharChunker) MaxChars() int {
	return c.maxChars
}

// ChunkID derives the identifier of a chunk slot from its file path and
// index. Content is not part of the hash: re-embedding the same slot
// overwrites it downstream.
func ChunkID(file string, index int) string {
	data := fmt.Sprintf("%s::%d", file, index)
	hash := sha1.Sum([]byte(data))
	return hex.EncodeToString(hash[:])
}
