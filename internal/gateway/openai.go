package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Provider names used in routes.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
)

const maxResponseBytes = 10 << 20

// ChatConfig configures an OpenAI-compatible chat-completions provider.
type ChatConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	// Headers are added to every request (e.g. OpenRouter attribution).
	Headers    map[string]string
	HTTPClient *http.Client
}

// ChatProvider talks to any OpenAI-compatible /chat/completions endpoint.
// OpenRouter and Groq both use it.
type ChatProvider struct {
	name    string
	baseURL string
	apiKey  string
	headers map[string]string
	http    *http.Client
}

// NewChatProvider creates a chat-completions provider.
func NewChatProvider(cfg ChatConfig) *ChatProvider {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &ChatProvider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		http:    hc,
	}
}

// NewOpenRouter returns the OpenRouter provider with its attribution headers.
func NewOpenRouter(apiKey string) *ChatProvider {
	return NewChatProvider(ChatConfig{
		Name:    ProviderOpenRouter,
		BaseURL: OpenRouterBaseURL,
		APIKey:  apiKey,
		Headers: map[string]string{
			"HTTP-Referer": "https://localhost",
			"X-Title":      "Alternate History Engine",
		},
	})
}

// NewGroq returns the Groq provider.
func NewGroq(apiKey string) *ChatProvider {
	return NewChatProvider(ChatConfig{Name: ProviderGroq, BaseURL: GroqBaseURL, APIKey: apiKey})
}

func (p *ChatProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt as a single user message.
func (p *ChatProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%s: API key not configured", p.name)
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%s read response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%s decode response: %w", p.name, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: %s", p.name, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return out.Choices[0].Message.Content, nil
}
