// Package ollama talks to an Ollama server: an HTTP embedding client and a
// constructor for the langchaingo chat model used for generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/pkg/fn"
	"github.com/WessleyAI/ragchat/pkg/resilience"
	"golang.org/x/time/rate"
)

// EmbedClient computes embeddings through Ollama's /api/embeddings endpoint.
// Failures are reported as domain.ErrEmbeddingService and never retried.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	workers int
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// Option configures an EmbedClient.
type Option func(*EmbedClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EmbedClient) { e.client = c }
}

// WithWorkers bounds the number of concurrent requests made by EmbedBatch.
func WithWorkers(n int) Option {
	return func(e *EmbedClient) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRateLimit paces outbound requests to perSecond. Zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(e *EmbedClient) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithBreaker routes every request through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(e *EmbedClient) { e.breaker = b }
}

// NewEmbedClient creates an embedding client for model at baseURL.
func NewEmbedClient(baseURL, model string, opts ...Option) *EmbedClient {
	c := &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
		workers: 4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.Wrap("ollama embed", domain.ErrEmbeddingService, err)
		}
	}
	var out []float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, domain.Wrap("ollama embed", domain.ErrEmbeddingService, err)
	}
	return out, nil
}

func (c *EmbedClient) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedReq{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("model %q returned an empty embedding", c.model)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds texts concurrently. The result is index-aligned with texts;
// any failure fails the whole batch.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	idx := make([]int, len(texts))
	for i := range idx {
		idx[i] = i
	}
	results := fn.ParMapResult(idx, c.workers, func(i int) fn.Result[[]float32] {
		v, err := c.Embed(ctx, texts[i])
		if err != nil {
			return fn.Err[[]float32](fmt.Errorf("embed batch [%d]: %w", i, err))
		}
		return fn.Ok(v)
	})
	return fn.Collect(results).Unwrap()
}
