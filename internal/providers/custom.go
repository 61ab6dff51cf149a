package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"intellipy/internal/config"
	"intellipy/internal/logger"
)

const (
	customName       = "Custom Server"
	noCustomResponse = "No response from custom provider"
	maxResponseBytes = 8 << 20
)

// CustomFormat is the request/response dialect spoken by a user endpoint.
type CustomFormat string

// Supported dialects.
const (
	FormatOpenAI CustomFormat = "openai"
	FormatOllama CustomFormat = "ollama"
	FormatRaw    CustomFormat = "raw"
)

// ParseCustomFormat maps a setting value to a dialect. Unknown values fall back to raw.
func ParseCustomFormat(s string) CustomFormat {
	switch CustomFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatOpenAI, "":
		return FormatOpenAI
	case FormatOllama:
		return FormatOllama
	default:
		return FormatRaw
	}
}

// fallbackPaths are tried in order after the dialect's primary path.
var fallbackPaths = []string{
	"response",
	"message",
	"content",
	"text",
	"output",
	"completion",
	"choices.0.text",
	"candidates.0.content.parts.0.text",
}

// CustomConfig holds the user endpoint settings.
type CustomConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Format   string
}

// CustomProvider POSTs prompts to a user-configured HTTP endpoint.
type CustomProvider struct {
	cfg        CustomConfig
	format     CustomFormat
	httpClient *http.Client
}

// NewCustomProvider creates a provider for a user endpoint.
func NewCustomProvider(cfg CustomConfig, httpClient *http.Client) *CustomProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CustomProvider{cfg: cfg, format: ParseCustomFormat(cfg.Format), httpClient: httpClient}
}

// Name returns the provider display name.
func (p *CustomProvider) Name() string {
	return customName
}

// SendMessage posts the prompt and extracts the answer from the first matching response field.
func (p *CustomProvider) SendMessage(ctx context.Context, message string, promptContext string) (string, error) {
	if strings.TrimSpace(p.cfg.Endpoint) == "" {
		pe := newError(customName, KindConfigurationMissing, "custom endpoint not configured", nil)
		pe.Hint = "Set intellipy.customEndpoint in settings"
		return "", pe
	}
	if err := config.ValidateEndpoint(p.cfg.Endpoint); err != nil {
		return "", newError(customName, KindConfigurationMissing, err.Error(), err)
	}

	body, err := p.buildRequestBody(message, promptContext)
	if err != nil {
		return "", newError(customName, KindMalformedRequest, err.Error(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", newError(customName, KindConfigurationMissing, err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	logger.ProviderCall("custom", p.cfg.Model, len(message), len(promptContext))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.Error("Custom provider request failed", "endpoint", p.cfg.Endpoint, "error", err)
		return "", classifyTransport(customName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyTransport(customName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(customName, resp.StatusCode, errorMessageFrom(data, resp.Status), nil)
	}

	return p.extractResponse(data)
}

func (p *CustomProvider) buildRequestBody(message, promptContext string) ([]byte, error) {
	prompt := fullPrompt(message, promptContext)

	switch p.format {
	case FormatOpenAI:
		model := p.cfg.Model
		if model == "" {
			model = "default"
		}
		return json.Marshal(map[string]any{
			"model": model,
			"messages": []map[string]string{
				{"role": "system", "content": "You are a helpful AI assistant specialized in Python development."},
				{"role": "user", "content": prompt},
			},
			"temperature": defaultTemp,
			"max_tokens":  defaultMaxTokens,
		})
	case FormatOllama:
		model := p.cfg.Model
		if model == "" {
			model = "codellama"
		}
		return json.Marshal(map[string]any{
			"model":  model,
			"prompt": prompt,
			"stream": false,
			"options": map[string]any{
				"temperature": defaultTemp,
				"num_predict": defaultMaxTokens,
			},
		})
	default:
		body, err := sjson.SetBytes([]byte(`{}`), "message", message)
		if err != nil {
			return nil, err
		}
		if promptContext != "" {
			if body, err = sjson.SetBytes(body, "context", promptContext); err != nil {
				return nil, err
			}
		}
		if p.cfg.Model != "" {
			if body, err = sjson.SetBytes(body, "model", p.cfg.Model); err != nil {
				return nil, err
			}
		}
		return sjson.SetBytes(body, "prompt", prompt)
	}
}

func (p *CustomProvider) primaryPath() string {
	switch p.format {
	case FormatOpenAI:
		return "choices.0.message.content"
	case FormatOllama:
		return "response"
	default:
		return ""
	}
}

func (p *CustomProvider) extractResponse(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", newError(customName, KindUnexpectedResponse, "response body is not valid JSON", nil)
	}

	paths := fallbackPaths
	if primary := p.primaryPath(); primary != "" {
		paths = append([]string{primary}, fallbackPaths...)
	}

	for _, path := range paths {
		result := gjson.GetBytes(data, path)
		if result.Type == gjson.String && result.Str != "" {
			logger.Debug("Custom provider response matched", "path", path, "content_length", len(result.Str))
			return result.Str, nil
		}
	}

	logger.Warn("Custom provider response had no recognized field", "format", string(p.format))
	return noCustomResponse, nil
}

// errorMessageFrom pulls a backend error message out of a JSON error body when there is one.
func errorMessageFrom(data []byte, status string) string {
	if gjson.ValidBytes(data) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(data, path); r.Type == gjson.String && r.Str != "" {
				return fmt.Sprintf("%s: %s", status, r.Str)
			}
		}
	}
	return "server error: " + status
}
