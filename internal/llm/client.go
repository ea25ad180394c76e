package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/logging"
)

// Endpoints
const (
	EndpointEmbed    = "/api/embed"
	EndpointGenerate = "/api/generate"
	EndpointShow     = "/api/show"
	EndpointPull     = "/api/pull"

	DefaultBaseURL = "http://localhost:11434"
)

// Config configures the model endpoint
type Config struct {
	BaseURL string
	// Timeout bounds each request; 0 means no client-side timeout
	Timeout time.Duration
}

// Client talks to an Ollama-compatible endpoint. Embed and Generate responses
// are cached by server, endpoint and exact payload.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Store
	logger     *zap.Logger
}

// New creates a client. A nil store disables caching.
func New(cfg Config, store cache.Store, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      store,
		logger:     logging.OrNop(logger).With(zap.String("component", "llm")),
	}
}

// embedRequest is the /api/embed request format
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the /api/embed response format
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (r *embedResponse) validate() error {
	if len(r.Embeddings) == 0 || len(r.Embeddings[0]) == 0 {
		return fmt.Errorf("%w: no embeddings returned", ErrEmptyResponse)
	}
	return nil
}

// GenerateRequest is a single non-streaming completion
type GenerateRequest struct {
	Model     string
	Prompt    string
	Raw       bool // Send the prompt without the model's template
	Logprobs  bool // Return per-token log probabilities
	MaxTokens int  // 0 leaves the model default
}

// TokenLogprob is the log probability of one generated token
type TokenLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// GenerateResponse is a completed generation
type GenerateResponse struct {
	Text     string
	Logprobs []TokenLogprob
}

// generateRequest is the /api/generate request format
type generateRequest struct {
	Model    string          `json:"model"`
	Prompt   string          `json:"prompt"`
	Stream   bool            `json:"stream"`
	Raw      bool            `json:"raw,omitempty"`
	Logprobs bool            `json:"logprobs,omitempty"`
	Options  generateOptions `json:"options"`
}

// generateOptions holds generation parameters; temperature is pinned for determinism
type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// generateResponse is the /api/generate response format
type generateResponse struct {
	Response string         `json:"response"`
	Done     bool           `json:"done"`
	Logprobs []TokenLogprob `json:"logprobs,omitempty"`
}

func (r *generateResponse) validate() error {
	return nil
}

// response is a decoded body that can reject itself before it is cached
type response interface {
	validate() error
}

// Embed returns the embedding of text. The caller formats text with FormatQuery
// or FormatDocument.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	req := embedRequest{Model: model, Input: text}
	resp, err := attemptWithProvisioning(ctx, c, model, func() (*embedResponse, error) {
		var out embedResponse
		if err := c.postCached(ctx, EndpointEmbed, req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

// Generate runs a completion
func (c *Client) Generate(ctx context.Context, gr GenerateRequest) (*GenerateResponse, error) {
	req := generateRequest{
		Model:    gr.Model,
		Prompt:   gr.Prompt,
		Stream:   false,
		Raw:      gr.Raw,
		Logprobs: gr.Logprobs,
		Options:  generateOptions{NumPredict: gr.MaxTokens, Temperature: 0},
	}
	resp, err := attemptWithProvisioning(ctx, c, gr.Model, func() (*generateResponse, error) {
		var out generateResponse
		if err := c.postCached(ctx, EndpointGenerate, req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Text: resp.Response, Logprobs: resp.Logprobs}, nil
}

// ModelExists reports whether the endpoint has model locally
func (c *Client) ModelExists(ctx context.Context, model string) (bool, error) {
	err := c.post(ctx, EndpointShow, map[string]string{"model": model}, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.modelNotFound() {
		return false, nil
	}
	return false, err
}

// Pull downloads model, blocking until the endpoint reports completion
func (c *Client) Pull(ctx context.Context, model string) error {
	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	req := struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}{Model: model, Stream: false}

	start := time.Now()
	if err := c.post(ctx, EndpointPull, req, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return &APIError{Endpoint: EndpointPull, StatusCode: http.StatusOK, Body: out.Error}
	}
	c.logger.Info("model pulled", zap.String("model", model), zap.String("status", out.Status),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// EnsureModel pulls model when the endpoint does not have it
func (c *Client) EnsureModel(ctx context.Context, model string) error {
	ok, err := c.ModelExists(ctx, model)
	if err != nil {
		return fmt.Errorf("check model %s: %w", model, err)
	}
	if ok {
		return nil
	}
	return c.Pull(ctx, model)
}

// postCached is post with the response body cached under the request digest.
// Cache failures are logged and never fail the call.
func (c *Client) postCached(ctx context.Context, endpoint string, payload any, out response) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	key := cache.Key(c.baseURL, endpoint, string(body))

	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache read failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
		if ok && json.Unmarshal(cached, out) == nil && out.validate() == nil {
			c.logger.Debug("cache hit", zap.String("endpoint", endpoint))
			return nil
		}
	}

	raw, err := c.do(ctx, endpoint, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if err := out.validate(); err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, raw); err != nil {
			c.logger.Warn("cache write failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
	return nil
}

// post sends payload and decodes the response into out when out is non-nil
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	raw, err := c.do(ctx, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrModelUnavailable, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
