package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Generation defaults shared by both backends.
const (
	expansionSystemPrompt = "You are a helpful assistant that rephrases questions."
	expansionTemperature  = 0.7
	expansionMaxTokens    = 150

	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaChatModel = "llama3"
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterChat  = "openrouter/auto"
	defaultGenerateTimeout = 30 * time.Second
)

// Generator produces text from a prompt via an external LLM service.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// OllamaGenerator calls Ollama's /api/chat without streaming.
type OllamaGenerator struct {
	host    string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewOllamaGenerator creates a generator for host and model.
func NewOllamaGenerator(host, model string, timeout time.Duration) *OllamaGenerator {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaChatModel
	}
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	return &OllamaGenerator{
		host:    strings.TrimRight(host, "/"),
		model:   model,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Options  map[string]any      `json:"options,omitempty"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// Generate implements Generator.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model: g.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: expansionSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Options: map[string]any{
			"temperature": expansionTemperature,
			"num_predict": expansionMaxTokens,
		},
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama chat: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

// Name returns "ollama".
func (g *OllamaGenerator) Name() string { return "ollama" }

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates a generator. An empty key is an error.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if model == "" || model == DefaultOllamaChatModel {
		model = DefaultOpenRouterChat
	}
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expansionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: expansionTemperature,
		MaxTokens:   expansionMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name returns "openrouter".
func (g *OpenAIGenerator) Name() string { return "openrouter" }
