package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpipe/config"
	"ctxpipe/internal/domain"
)

func chunks(texts ...string) []domain.ChunkText {
	out := make([]domain.ChunkText, len(texts))
	for i, t := range texts {
		out[i] = domain.ChunkText{ID: string(rune('a' + i)), Text: t}
	}
	return out
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestOpenAIEmbedderSingleRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Reverse order to check results are placed by index.
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "", srv.URL, 0, time.Second)
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), chunks("one", "two", "héllo"))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, []float32{2, 1}, records[2].Embedding)
	assert.Equal(t, 5, records[2].Len)
}

func TestOpenAIEmbedderBatches(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sizes = append(sizes, len(req.Input))

		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("k", "m", srv.URL, 2, time.Second)
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), chunks("1", "2", "3", "4", "5"))
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestOpenAIEmbedderRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("k", "", srv.URL, 0, time.Second)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), chunks("x"))
	require.Error(t, err)

	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.Status)
	assert.Equal(t, "bad key", remote.Message)
	assert.True(t, errors.Is(err, domain.ErrRemoteRejected))
}

func TestOpenAIEmbedderMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("k", "", srv.URL, 0, time.Second)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), chunks("x", "y"))
	assert.Error(t, err)
}

func TestEmbedEmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder("k", "", "http://127.0.0.1:1", 0, time.Second)
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	local, err := NewLocalEmbedder("all-minilm", "http://127.0.0.1:1", time.Second)
	require.NoError(t, err)
	records, err = local.Embed(context.Background(), []domain.ChunkText{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func ollamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case tagsEndpoint:
			var tags ollamaTagsResponse
			for _, m := range models {
				tags.Models = append(tags.Models, struct {
					Name  string `json:"name"`
					Model string `json:"model"`
				}{Name: m, Model: m})
			}
			_ = json.NewEncoder(w).Encode(tags)
		case embedEndpoint:
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := ollamaEmbedResponse{}
			for range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{3, 4})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLocalEmbedderNormalizes(t *testing.T) {
	srv := ollamaServer(t, "all-minilm:latest")
	defer srv.Close()

	e, err := NewLocalEmbedder("all-minilm", srv.URL, time.Second)
	require.NoError(t, err)

	records, err := e.Embed(context.Background(), chunks("a", "b"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 0.6, records[0].Embedding[0], 1e-6)
	assert.InDelta(t, 0.8, records[1].Embedding[1], 1e-6)
	assert.Equal(t, "all-minilm", e.ModelName())
}

func TestLocalEmbedderModelMissing(t *testing.T) {
	srv := ollamaServer(t, "nomic-embed-text")
	defer srv.Close()

	e, err := NewLocalEmbedder("all-minilm", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), chunks("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestLocalEmbedderServerDown(t *testing.T) {
	srv := ollamaServer(t)
	url := srv.URL
	srv.Close()

	e, err := NewLocalEmbedder("all-minilm", url, time.Second)
	require.NoError(t, err)

	err = e.CheckModel(context.Background())
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable), "got %v", err)
}

func TestNormalize(t *testing.T) {
	v := []float32{1, 2, 2}
	Normalize(v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNewByMode(t *testing.T) {
	cfg := config.DefaultConfig().Embed

	e, err := New(config.ModeDry, cfg)
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = New(config.ModeRemote, cfg)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable), "remote without key")

	cfg.APIKey = "k"
	e, err = New(config.ModeRemote, cfg)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())

	e, err = New(config.ModeLocal, cfg)
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", e.ModelName())

	_, err = New("magic", cfg)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
