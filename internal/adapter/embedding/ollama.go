package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var _ port.Embedder = (*LocalEmbedder)(nil)

const (
	defaultOllamaURL = "http://localhost:11434"
	embedEndpoint    = "/api/embed"
	tagsEndpoint     = "/api/tags"
)

// LocalEmbedder encodes texts with a model served by a local Ollama daemon
// and returns unit-length vectors.
type LocalEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewLocalEmbedder creates the local-model backend.
func NewLocalEmbedder(model, baseURL string, timeout time.Duration) (*LocalEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: local-model embedding needs a model name", domain.ErrBackendUnavailable)
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// CheckModel verifies the model artifact is available locally.
func (e *LocalEmbedder) CheckModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+tagsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: local model server at %s: %v", domain.ErrBackendUnavailable, e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &domain.RemoteError{Service: "local model server", Status: resp.StatusCode, Message: preview(body)}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, e.model) || sameModel(m.Model, e.model) {
			return nil
		}
	}
	return fmt.Errorf("%w: local model %q is not installed (pull it first)", domain.ErrBackendUnavailable, e.model)
}

// sameModel treats "name" and "name:latest" as the same artifact.
func sameModel(have, want string) bool {
	if have == "" {
		return false
	}
	if have == want {
		return true
	}
	return strings.TrimSuffix(have, ":latest") == strings.TrimSuffix(want, ":latest")
}

func (e *LocalEmbedder) Embed(ctx context.Context, chunks []domain.ChunkText) ([]domain.EmbeddingRecord, error) {
	if len(chunks) == 0 {
		return []domain.EmbeddingRecord{}, nil
	}
	if err := e.CheckModel(ctx); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+embedEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.RemoteError{Service: "local model server", Status: resp.StatusCode, Message: preview(body)}
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, &domain.RemoteError{Service: "local model server", Status: resp.StatusCode, Message: out.Error}
	}

	for _, v := range out.Embeddings {
		Normalize(v)
	}
	return toRecords(chunks, out.Embeddings)
}

func (e *LocalEmbedder) ModelName() string {
	return e.model
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
