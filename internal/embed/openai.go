package embed

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI-compatible defaults. OpenRouter is the default endpoint.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel   = "thenlper/gte-large"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions is requested from models that support truncation and
	// checked against responses. 0 learns it from the first response.
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	request int // dimensions sent with each request, 0 = server default
	dims    atomic.Int64
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the client. An empty API key is an error
// because every hosted endpoint rejects unauthenticated calls.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, unavailable(ProviderOpenRouter, fmt.Errorf("OPENROUTER_API_KEY is not set"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenRouterModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	e := &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		request: cfg.Dimensions,
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withDefaultTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.request > 0 {
		req.Dimensions = e.request
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, unavailable(ProviderOpenRouter, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, unavailable(ProviderOpenRouter, fmt.Errorf("no embedding data returned"))
	}

	vec := normalizeVector(resp.Data[0].Embedding)
	if want := e.dims.Load(); want == 0 {
		e.dims.CompareAndSwap(0, int64(len(vec)))
	} else if int(want) != len(vec) {
		return nil, unavailable(ProviderOpenRouter,
			fmt.Errorf("model returned %d dimensions, expected %d", len(vec), want))
	}
	return vec, nil
}

// Available lists models as a cheap authenticated probe.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// Dimensions returns the configured or learned dimension.
func (e *OpenAIEmbedder) Dimensions() int { return int(e.dims.Load()) }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Backend returns "openrouter".
func (e *OpenAIEmbedder) Backend() string { return ProviderOpenRouter }

// Close is a no-op; the client holds no resources of its own.
func (e *OpenAIEmbedder) Close() error { return nil }
