// Package providers implements the LLM backends behind one Provider interface and resolves the
// active one from configuration on every request.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"intellipy/internal/config"
	"intellipy/internal/logger"
	"intellipy/pkg/intellitypes"
)

// Type names a provider variant as written in the llmProvider setting.
type Type string

// Supported provider variants.
const (
	TypeBedrock   Type = "bedrock"
	TypeBrowser   Type = "m365copilot"
	TypeCustom    Type = "custom"
	TypeGemini    Type = "gemini"
	TypeAnthropic Type = "anthropic"
	TypeOpenAI    Type = "openai"
)

// AllTypes lists every provider variant.
var AllTypes = []Type{TypeBedrock, TypeBrowser, TypeCustom, TypeGemini, TypeAnthropic, TypeOpenAI}

const (
	defaultMaxTokens = 4096
	defaultTemp      = 0.7
	systemPrompt     = "You are a helpful AI assistant specialized in Python development. Analyze the code and provide helpful suggestions."
	testAccessPrompt = "Hello, this is a test message."
)

// Deps carries optional collaborators; zero values select the real implementations.
type Deps struct {
	HTTPClient *http.Client
	Bedrock    BedrockInvoker
	OpenURL    func(url string) error
	CopyText   func(text string) error
}

// Resolve builds the provider selected by the current configuration.
// It reads src on every call and keeps no state between calls.
func Resolve(src config.Source, deps Deps) (intellitypes.Provider, error) {
	snap := config.Read(src)
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	logger.Debug("Resolving provider", "provider", snap.Provider)

	switch Type(snap.Provider) {
	case TypeBedrock:
		p := NewBedrockProvider(snap.AWSRegion, snap.ModelID)
		if deps.Bedrock != nil {
			p.client = deps.Bedrock
		}
		return p, nil
	case TypeBrowser:
		return NewBrowserProvider(snap.BrowserChatURL, deps.OpenURL, deps.CopyText), nil
	case TypeCustom:
		return NewCustomProvider(CustomConfig{
			Endpoint: snap.CustomEndpoint,
			APIKey:   snap.CustomAPIKey,
			Model:    snap.CustomModel,
			Format:   snap.CustomFormat,
		}, httpClient), nil
	case TypeGemini:
		return NewGeminiProvider(snap.GeminiAPIKey, snap.GeminiModel, httpClient), nil
	case TypeAnthropic:
		return NewAnthropicProvider(snap.AnthropicAPIKey, snap.AnthropicModel, httpClient), nil
	case TypeOpenAI:
		return NewOpenAIProvider(snap.OpenAIAPIKey, snap.OpenAIModel, snap.OpenAIBaseURL, httpClient), nil
	case "":
		return nil, newError("IntelliPy", KindConfigurationMissing, "no LLM provider configured", nil)
	default:
		return nil, newError("IntelliPy", KindConfigurationMissing,
			fmt.Sprintf("unknown LLM provider '%s' (supported: %s)", snap.Provider, supportedList()), nil)
	}
}

// TestAccess sends a short probe message through p.
func TestAccess(ctx context.Context, p intellitypes.Provider) error {
	logger.Debug("Testing provider access", "provider", p.Name())
	if _, err := p.SendMessage(ctx, testAccessPrompt, ""); err != nil {
		logger.Warn("Provider access test failed", "provider", p.Name(), "error", err)
		return err
	}
	return nil
}

// fullPrompt joins the message and context the way chat-style backends expect.
func fullPrompt(message, promptContext string) string {
	if promptContext == "" {
		return message
	}
	return message + "\n\nContext:\n" + promptContext
}

func supportedList() string {
	names := make([]string, 0, len(AllTypes))
	for _, t := range AllTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
