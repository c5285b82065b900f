// Package embedding provides an HTTP client for an OpenAI-embeddings-
// compatible provider. Embedding providers are an external collaborator
// (spec §1): this package implements the interface the core depends on
// (internal/semantic.EmbeddingProvider) over HTTP; it bundles no model.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/resilience"
)

// Client calls an OpenAI-embeddings-compatible HTTP endpoint
// (POST {baseURL}/embeddings), the same shape LiteLLM, OpenAI, and most
// self-hosted embedding servers expose.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient builds an embedding client. dimension is validated against
// every response so a misconfigured model is caught at the call site
// rather than silently corrupting the vector index.
func NewClient(baseURL, apiKey, model string, dimension int, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker so a failing provider stops
// accepting new calls instead of piling up timeouts under load.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed turns text into a vector of the client's configured dimension. A
// failed first attempt is retried once after a fixed 200ms pause, whatever
// the failure was, unless the circuit breaker is open.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	call := func() error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}

	run := call
	if c.breaker != nil {
		run = func() error { return c.breaker.Execute(call) }
	}

	if err := run(); err != nil {
		if err == resilience.ErrCircuitOpen {
			return nil, fmt.Errorf("%w: embedding provider circuit open", domain.ErrProviderError)
		}
		time.Sleep(200 * time.Millisecond)
		if err := run(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderError, err)
		}
	}

	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: provider returned %d dims, want %d", domain.ErrDimensionMismatch, len(vec), c.dimension)
	}
	return vec, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed provider status %d: %s", resp.StatusCode, raw)
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embed provider returned no embeddings")
	}
	return parsed.Data[0].Embedding, nil
}
