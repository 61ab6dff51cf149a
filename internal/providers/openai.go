package providers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"intellipy/internal/logger"
)

const openAIName = "OpenAI"

// OpenAIProvider calls the OpenAI chat completions API, or any compatible server when a base URL is set.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with lazy client initialization.
func NewOpenAIProvider(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey, model: model, baseURL: baseURL, httpClient: httpClient}
}

// Name returns the provider display name.
func (p *OpenAIProvider) Name() string {
	return openAIName
}

func (p *OpenAIProvider) initializeClientIfNeeded() (*openai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	if p.apiKey == "" {
		pe := newError(openAIName, KindConfigurationMissing, "OpenAI API key not configured", nil)
		pe.Hint = "Set intellipy.openaiApiKey in settings"
		return nil, pe
	}

	options := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		options = append(options, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		options = append(options, option.WithHTTPClient(p.httpClient))
	}
	client := openai.NewClient(options...)
	p.client = &client

	logger.Debug("OpenAI client initialized", "provider", "openai", "base_url", p.baseURL)
	return p.client, nil
}

// SendMessage sends a system and user message pair and returns the first choice.
func (p *OpenAIProvider) SendMessage(ctx context.Context, message string, promptContext string) (string, error) {
	client, err := p.initializeClientIfNeeded()
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fullPrompt(message, promptContext)),
		},
	}

	logger.ProviderCall("openai", p.model, len(message), len(promptContext))
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(openAIName, apiErr.StatusCode, "", err)
		}
		return "", classifyTransport(openAIName, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", newError(openAIName, KindUnexpectedResponse, "no response choices returned", nil)
	}

	content := completion.Choices[0].Message.Content
	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}
