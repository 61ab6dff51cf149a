package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"intellipy/internal/logger"
)

const geminiName = "Google Gemini"

// GeminiProvider calls the Gemini API. The SDK client is created on first use.
type GeminiProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider with lazy client initialization.
func NewGeminiProvider(apiKey, model string, httpClient *http.Client) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model, httpClient: httpClient}
}

// Name returns the provider display name.
func (p *GeminiProvider) Name() string {
	return geminiName
}

func (p *GeminiProvider) initializeClientIfNeeded(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	if p.apiKey == "" {
		pe := newError(geminiName, KindConfigurationMissing, "Gemini API key not configured", nil)
		pe.Hint = "Set intellipy.geminiApiKey in settings"
		return nil, pe
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.httpClient != nil {
		clientConfig.HTTPClient = p.httpClient
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, newError(geminiName, KindConfigurationMissing, "failed to create Gemini client: "+err.Error(), err)
	}
	p.client = client
	logger.Debug("Gemini client initialized", "provider", "gemini")
	return client, nil
}

// SendMessage generates content for the combined prompt.
func (p *GeminiProvider) SendMessage(ctx context.Context, message string, promptContext string) (string, error) {
	client, err := p.initializeClientIfNeeded(ctx)
	if err != nil {
		return "", err
	}

	temperature := float32(defaultTemp)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   defaultMaxTokens,
	}

	logger.ProviderCall("gemini", p.model, len(message), len(promptContext))
	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(fullPrompt(message, promptContext)), cfg)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", classifyGeminiError(err)
	}

	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", newError(geminiName, KindUnexpectedResponse, "no text content in response", nil)
	}

	logger.Debug("Gemini response received", "content_length", b.Len())
	return b.String(), nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(geminiName, apiErr.Code, apiErr.Message, err)
	}
	return classifyTransport(geminiName, err)
}
