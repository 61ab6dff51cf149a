package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"intellipy/internal/logger"
)

const anthropicName = "Anthropic"

// AnthropicProvider calls the Anthropic Messages API directly.
type AnthropicProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client

	mu     sync.Mutex
	client *anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider with lazy client initialization.
func NewAnthropicProvider(apiKey, model string, httpClient *http.Client) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, model: model, httpClient: httpClient}
}

// Name returns the provider display name.
func (p *AnthropicProvider) Name() string {
	return anthropicName
}

func (p *AnthropicProvider) initializeClientIfNeeded() (*anthropic.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	if p.apiKey == "" {
		pe := newError(anthropicName, KindConfigurationMissing, "Anthropic API key not configured", nil)
		pe.Hint = "Set intellipy.anthropicApiKey in settings"
		return nil, pe
	}

	options := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.httpClient != nil {
		options = append(options, option.WithHTTPClient(p.httpClient))
	}
	client := anthropic.NewClient(options...)
	p.client = &client

	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return p.client, nil
}

// SendMessage sends a single-turn message and concatenates the text blocks of the reply.
func (p *AnthropicProvider) SendMessage(ctx context.Context, message string, promptContext string) (string, error) {
	client, err := p.initializeClientIfNeeded()
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt(message, promptContext))),
		},
		System: []anthropic.TextBlockParam{{Text: systemPrompt}},
	}

	logger.ProviderCall("anthropic", p.model, len(message), len(promptContext))
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(anthropicName, apiErr.StatusCode, "", err)
		}
		return "", classifyTransport(anthropicName, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		b.WriteString(block.Text)
	}
	if b.Len() == 0 {
		return "", newError(anthropicName, KindUnexpectedResponse, "empty response content", nil)
	}

	logger.Debug("Anthropic response received", "content_length", b.Len())
	return b.String(), nil
}
