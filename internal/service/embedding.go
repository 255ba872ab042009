package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	defaultJinaBaseURL = "https://api.jina.ai/v1"
	probeText          = "embedding provider readiness probe"
)

// EmbeddingProvider turns text into fixed-length vectors.
//
// Initialize is idempotent and may be retried after a failure. Embed fails with
// domain.ErrProviderUnavailable until Initialize has succeeded. Every vector has
// exactly Dimension() components, including the one returned for empty input.
type EmbeddingProvider interface {
	Initialize(ctx context.Context) error
	Ready() bool
	// Embed embeds stored visit text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedQuery embeds free-text search input.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// NewEmbeddingProvider builds the provider named by cfg.Provider.
// Parameters:
//   - cfg: embedding configuration; must pass Validate.
// Returns:
//   - EmbeddingProvider: an uninitialized provider.
//   - error: non-nil for an unknown provider.
func NewEmbeddingProvider(cfg *config.EmbeddingConfig) (EmbeddingProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "jina":
		return NewJinaProvider(cfg), nil
	case "openai-compatible":
		return NewOpenAICompatibleProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// embedFunc performs one remote call for a non-empty, already truncated input.
type embedFunc func(ctx context.Context, text string, query bool) ([]float32, error)

// remoteProvider holds the lifecycle and input handling shared by HTTP providers.
type remoteProvider struct {
	name       string
	model      string
	apiKey     string
	dimensions int
	maxRunes   int
	timeout    time.Duration
	client     *resty.Client
	call       embedFunc

	mu    sync.RWMutex
	ready bool
}

func newRemoteProvider(name string, cfg *config.EmbeddingConfig, baseURL string) *remoteProvider {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(cfg.RequestTimeout()).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &remoteProvider{
		name:       name,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		maxRunes:   cfg.MaxInputRunes,
		timeout:    cfg.RequestTimeout(),
		client:     client,
	}
}

// Initialize checks credentials and probes the endpoint once to confirm the dimension.
func (p *remoteProvider) Initialize(ctx context.Context) error {
	if p.Ready() {
		return nil
	}
	if p.apiKey == "" {
		return fmt.Errorf("%w: %s api key is not configured", domain.ErrProviderUnavailable, p.name)
	}

	if _, err := p.callWithTimeout(ctx, probeText, false); err != nil {
		return err
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

func (p *remoteProvider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *remoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, false)
}

func (p *remoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, true)
}

func (p *remoteProvider) embed(ctx context.Context, text string, query bool) ([]float32, error) {
	if !p.Ready() {
		return nil, fmt.Errorf("%w: %s provider not initialized", domain.ErrProviderUnavailable, p.name)
	}
	text = truncateRunes(strings.TrimSpace(text), p.maxRunes)
	if text == "" {
		return make([]float32, p.dimensions), nil
	}
	return p.callWithTimeout(ctx, text, query)
}

func (p *remoteProvider) callWithTimeout(ctx context.Context, text string, query bool) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vec, err := p.call(ctx, text, query)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, p.name, err)
	}
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("%w: %s returned %d components, expected %d",
			domain.ErrDimensionMismatch, p.name, len(vec), p.dimensions)
	}
	return vec, nil
}

func (p *remoteProvider) Dimension() int {
	return p.dimensions
}

func (p *remoteProvider) Model() string {
	return p.model
}

func (p *remoteProvider) Close() error {
	p.mu.Lock()
	p.ready = false
	p.mu.Unlock()
	return nil
}

// JinaProvider calls the Jina embeddings API.
type JinaProvider struct {
	*remoteProvider
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// NewJinaProvider creates an uninitialized Jina provider.
func NewJinaProvider(cfg *config.EmbeddingConfig) *JinaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultJinaBaseURL
	}
	p := &JinaProvider{remoteProvider: newRemoteProvider("jina", cfg, baseURL)}
	p.call = p.post
	return p
}

func (p *JinaProvider) post(ctx context.Context, text string, query bool) ([]float32, error) {
	task := "retrieval.passage"
	if query {
		task = "retrieval.query"
	}

	var resp jinaResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(jinaRequest{
			Model:         p.model,
			Task:          task,
			Dimensions:    p.dimensions,
			Input:         []string{text},
			EmbeddingType: "float",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("jina API error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("jina API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// OpenAICompatibleProvider calls any server exposing the OpenAI /embeddings API.
type OpenAICompatibleProvider struct {
	*remoteProvider
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAICompatibleProvider creates an uninitialized OpenAI-compatible provider.
func NewOpenAICompatibleProvider(cfg *config.EmbeddingConfig) *OpenAICompatibleProvider {
	p := &OpenAICompatibleProvider{remoteProvider: newRemoteProvider("openai-compatible", cfg, cfg.BaseURL)}
	p.call = p.post
	return p
}

func (p *OpenAICompatibleProvider) post(ctx context.Context, text string, _ bool) ([]float32, error) {
	var resp openAIEmbeddingResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(openAIEmbeddingRequest{
			Model:          p.model,
			Input:          []string{text},
			Dimensions:     p.dimensions,
			EncodingFormat: "float",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("embeddings API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("embeddings API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
