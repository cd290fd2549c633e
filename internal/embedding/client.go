// Package embedding wraps the HTTP embedding endpoint used by Retain (C2) to
// turn extracted content into the 1024-d vectors stored alongside each
// memory unit. Grounded on internal/embedding/client.go; only the config
// plumbing changed to use the env-accessor package, and calls are
// bounded by a process-wide concurrency semaphore per §4.2.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"memoryengine/internal/config"
	"memoryengine/internal/observability"
)

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client calls the configured embedding endpoint, bounding concurrency to
// config.EmbeddingConcurrency() process-wide (§4.2).
type Client struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
}

// NewClient builds a Client with the process-wide concurrency cap applied.
func NewClient() *Client {
	return &Client{
		httpClient: observability.NewHTTPClient(nil),
		sem:        semaphore.NewWeighted(int64(config.EmbeddingConcurrency())),
	}
}

// EmbedOne embeds a single string, acquiring a concurrency slot for the
// duration of the call.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds multiple strings in a single upstream call, preserving
// input order in the returned slice. The semaphore bounds how many batches
// may be in flight at once, not the batch size itself.
func (c *Client) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("embedding: no inputs")
	}
	for _, in := range inputs {
		if in == "" {
			return nil, fmt.Errorf("embedding: empty input string")
		}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("embedding: acquire concurrency slot: %w", err)
	}
	defer c.sem.Release(1)

	reqBody, err := json.Marshal(embedReq{Model: config.EmbeddingModelID(), Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, config.EmbeddingBaseURL(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	if key := config.EmbeddingAPIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding: upstream status %s: %s", resp.Status, string(bodyBytes))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		n := len(bodyBytes)
		if n > 200 {
			n = 200
		}
		return nil, fmt.Errorf("embedding: parse response (input count %d, body %q): %w", len(inputs), bodyBytes[:n], err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding: got %d vectors, want %d", len(er.Data), len(inputs))
	}

	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
