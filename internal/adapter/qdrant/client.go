package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var _ port.VectorIndex = (*Client)(nil)

// Client talks to the Qdrant REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: qdrant endpoint is empty", domain.ErrConfiguration)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: qdrant endpoint %q: %v", domain.ErrConfiguration, baseURL, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
	OnDisk   bool   `json:"on_disk,omitempty"`
}

type hnswConfig struct {
	M           int `json:"m,omitempty"`
	EFConstruct int `json:"ef_construct,omitempty"`
}

type createRequest struct {
	Vectors    vectorParams `json:"vectors"`
	HNSWConfig *hnswConfig  `json:"hnsw_config,omitempty"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

func (c *Client) GetCollection(ctx context.Context, name string) (domain.CollectionInfo, bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil)
	if err != nil {
		return domain.CollectionInfo{}, false, err
	}
	if status == http.StatusNotFound {
		return domain.CollectionInfo{}, false, nil
	}
	if status != http.StatusOK {
		return domain.CollectionInfo{}, false, remoteError(status, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.CollectionInfo{}, false, fmt.Errorf("failed to parse collection %s: %w", name, err)
	}
	info := ParseCollectionInfo(env.Result)
	info.Name = name
	return info, true, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, remoteError(status, body)
	}

	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse collection list: %w", err)
	}

	names := make([]string, 0, len(resp.Result.Collections))
	for _, col := range resp.Result.Collections {
		names = append(names, col.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) CreateCollection(ctx context.Context, name string, spec port.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: collection %s needs a positive dimension", domain.ErrConfiguration, name)
	}
	req := createRequest{
		Vectors: vectorParams{
			Size:     spec.Dimension,
			Distance: wireDistance(spec.Distance),
			OnDisk:   spec.OnDisk,
		},
	}
	if spec.HNSWM > 0 || spec.EFConstruct > 0 {
		req.HNSWConfig = &hnswConfig{M: spec.HNSWM, EFConstruct: spec.EFConstruct}
	}

	status, body, err := c.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), req)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return remoteError(status, body)
	}
	return nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return remoteError(status, body)
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, name string, points []port.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	req := upsertRequest{Points: make([]point, len(points))}
	for i, p := range points {
		req.Points[i] = point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	status, body, err := c.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name)+"/points?wait=true", req)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return remoteError(status, body)
	}
	return nil
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListCollections(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: qdrant at %s: %v", domain.ErrBackendUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func remoteError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var parsed struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Status.Error != "" {
		msg = parsed.Status.Error
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &domain.RemoteError{Service: "qdrant", Status: status, Message: msg}
}

func wireDistance(d domain.Distance) string {
	switch d {
	case domain.DistanceDot:
		return "Dot"
	case domain.DistanceEuclid:
		return "Euclid"
	default:
		return "Cosine"
	}
}
