package gateway

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	models contentGenerator
}

// NewGemini creates a Gemini provider. An empty key is an error because the
// SDK would otherwise fall back to ambient credentials.
func NewGemini(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{models: client.Models}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Complete generates a single-turn reply.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	var cfg *genai.GenerateContentConfig
	if req.Temperature != nil {
		t := *req.Temperature
		cfg = &genai.GenerateContentConfig{Temperature: &t}
	}
	resp, err := p.models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}

// Unconfigured stands in for a provider whose API key is missing so that the
// router still builds and calls for that provider fail cleanly.
type Unconfigured struct {
	ProviderName string
}

func (u Unconfigured) Name() string { return u.ProviderName }

func (u Unconfigured) Complete(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%s: API key not configured", u.ProviderName)
}
