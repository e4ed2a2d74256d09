package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey    string
	model     string
	baseURL   string
	batchSize int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAIEmbedder creates the remote-api backend. batchSize 0 sends every
// text in a single request.
func NewOpenAIEmbedder(apiKey, model, baseURL string, batchSize int, timeout time.Duration) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: remote-api embedding needs an API key", domain.ErrBackendUnavailable)
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEmbedder{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		batchSize: batchSize,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, chunks []domain.ChunkText) ([]domain.EmbeddingRecord, error) {
	if len(chunks) == 0 {
		return []domain.EmbeddingRecord{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	batch := e.batchSize
	if batch <= 0 {
		batch = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batch {
		end := i + batch
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, embeddings...)
	}

	return toRecords(chunks, vectors)
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request failed: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RemoteError{Service: "embeddings API", Status: resp.StatusCode, Message: apiMessage(body)}
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}

	if embResp.Error != nil {
		return nil, &domain.RemoteError{Service: "embeddings API", Status: resp.StatusCode, Message: embResp.Error.Message}
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// toRecords zips chunks with their vectors, rejecting missing entries.
func toRecords(chunks []domain.ChunkText, vectors [][]float32) ([]domain.EmbeddingRecord, error) {
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d inputs", len(vectors), len(chunks))
	}

	records := make([]domain.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("embedding backend returned no vector for input %d (%s)", i, c.ID)
		}
		records[i] = domain.EmbeddingRecord{
			ID:        c.ID,
			Embedding: vectors[i],
			Len:       utf8.RuneCountInString(c.Text),
		}
	}
	return records, nil
}

func apiMessage(body []byte) string {
	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return preview(body)
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
