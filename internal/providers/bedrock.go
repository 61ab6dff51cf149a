package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/tidwall/gjson"

	"intellipy/internal/logger"
)

const bedrockName = "AWS Bedrock"

// BedrockInvoker is the subset of the Bedrock runtime client used here.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// bedrockEncoding is the request/response shape a model family speaks.
type bedrockEncoding int

const (
	encodingMessages bedrockEncoding = iota
	encodingLegacyCompletion
	encodingTitan
)

// BedrockProvider calls models hosted on AWS Bedrock.
// The runtime client is created lazily from the default AWS credential chain.
type BedrockProvider struct {
	region  string
	modelID string

	mu     sync.Mutex
	client BedrockInvoker
}

// NewBedrockProvider creates a Bedrock provider for region and modelID.
func NewBedrockProvider(region, modelID string) *BedrockProvider {
	return &BedrockProvider{region: region, modelID: modelID}
}

// NewBedrockProviderWithClient creates a provider around an existing runtime client.
func NewBedrockProviderWithClient(modelID string, client BedrockInvoker) *BedrockProvider {
	return &BedrockProvider{modelID: modelID, client: client}
}

// Name returns the provider display name.
func (p *BedrockProvider) Name() string {
	return bedrockName
}

func (p *BedrockProvider) initializeClientIfNeeded(ctx context.Context) (BedrockInvoker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, p.classify(fmt.Errorf("failed to load AWS configuration: %w", err))
	}
	p.client = bedrockruntime.NewFromConfig(cfg)
	logger.Debug("Bedrock client initialized", "provider", "bedrock", "region", p.region)
	return p.client, nil
}

// SendMessage invokes the configured model with the encoding its family requires.
func (p *BedrockProvider) SendMessage(ctx context.Context, message string, promptContext string) (string, error) {
	encoding, err := encodingFor(p.modelID)
	if err != nil {
		return "", err
	}

	prompt := fullPrompt(message, promptContext)
	body, err := encodeBedrockRequest(encoding, prompt)
	if err != nil {
		return "", newError(bedrockName, KindMalformedRequest, err.Error(), err)
	}

	client, err := p.initializeClientIfNeeded(ctx)
	if err != nil {
		return "", err
	}

	logger.ProviderCall("bedrock", p.modelID, len(message), len(promptContext))
	out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		logger.Error("Bedrock request failed", "model", p.modelID, "error", err)
		return "", p.classify(err)
	}

	text, err := decodeBedrockResponse(encoding, out.Body)
	if err != nil {
		return "", err
	}
	logger.Debug("Bedrock response received", "content_length", len(text))
	return text, nil
}

// encodingFor selects the wire encoding from the model identifier. Cross-region inference
// profile ids such as "us.anthropic.claude-3-5-sonnet..." are matched by substring.
func encodingFor(modelID string) (bedrockEncoding, error) {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "anthropic.claude-3"),
		strings.Contains(id, "anthropic.claude-sonnet-4"),
		strings.Contains(id, "anthropic.claude-opus-4"),
		strings.Contains(id, "anthropic.claude-haiku-4"):
		return encodingMessages, nil
	case strings.Contains(id, "anthropic.claude-v2"), strings.Contains(id, "anthropic.claude-instant"):
		return encodingLegacyCompletion, nil
	case strings.Contains(id, "amazon.titan"):
		return encodingTitan, nil
	default:
		pe := newError(bedrockName, KindUnsupportedModel, fmt.Sprintf("unsupported model: %s", modelID), nil)
		pe.Hint = "Use an Anthropic Claude (v2, instant, 3 or later) or Amazon Titan text model id"
		return 0, pe
	}
}

type bedrockMessagesRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockCompletionRequest struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	TopP              float64  `json:"top_p"`
	StopSequences     []string `json:"stop_sequences"`
}

type titanRequest struct {
	InputText            string                `json:"inputText"`
	TextGenerationConfig titanGenerationConfig `json:"textGenerationConfig"`
}

type titanGenerationConfig struct {
	MaxTokenCount int      `json:"maxTokenCount"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	StopSequences []string `json:"stopSequences"`
}

func encodeBedrockRequest(encoding bedrockEncoding, prompt string) ([]byte, error) {
	var req any
	switch encoding {
	case encodingMessages:
		req = bedrockMessagesRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        defaultMaxTokens,
			Temperature:      defaultTemp,
			System:           systemPrompt,
			Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
		}
	case encodingLegacyCompletion:
		req = bedrockCompletionRequest{
			Prompt:            "\n\nHuman: " + prompt + "\n\nAssistant:",
			MaxTokensToSample: defaultMaxTokens,
			Temperature:       defaultTemp,
			TopP:              0.9,
			StopSequences:     []string{"\n\nHuman:"},
		}
	case encodingTitan:
		req = titanRequest{
			InputText: prompt,
			TextGenerationConfig: titanGenerationConfig{
				MaxTokenCount: defaultMaxTokens,
				Temperature:   defaultTemp,
				TopP:          0.9,
				StopSequences: []string{},
			},
		}
	default:
		return nil, fmt.Errorf("unknown encoding %d", encoding)
	}
	return json.Marshal(req)
}

func decodeBedrockResponse(encoding bedrockEncoding, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", newError(bedrockName, KindUnexpectedResponse, "response body is not JSON", nil)
	}

	var path string
	switch encoding {
	case encodingMessages:
		path = "content.0.text"
	case encodingLegacyCompletion:
		path = "completion"
	case encodingTitan:
		path = "results.0.outputText"
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return "", newError(bedrockName, KindUnexpectedResponse, fmt.Sprintf("response has no %q field", path), nil)
	}
	return result.String(), nil
}

// classify maps AWS error codes to provider error kinds.
func (p *BedrockProvider) classify(err error) *ProviderError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		var pe *ProviderError
		switch code {
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			pe = newError(bedrockName, KindAuthorizationDenied, "access denied to AWS Bedrock", err)
			pe.Hint = fmt.Sprintf("Ensure you have Bedrock permissions in %s and the model %s is enabled", p.region, p.modelID)
		case "ModelNotReadyException", "ResourceNotFoundException", "ModelTimeoutException":
			pe = newError(bedrockName, KindModelUnavailable, "model is not ready", err)
		case "ValidationException":
			pe = newError(bedrockName, KindMalformedRequest, "invalid request: "+apiErr.ErrorMessage(), err)
		case "ThrottlingException", "ServiceQuotaExceededException":
			pe = newError(bedrockName, KindRateLimited, "rate limit exceeded", err)
		default:
			pe = newError(bedrockName, KindTransport, apiErr.ErrorMessage(), err)
		}
		pe.Code = code
		return pe
	}

	if strings.Contains(strings.ToLower(err.Error()), "credentials") {
		pe := newError(bedrockName, KindAuthorizationDenied, "AWS Bedrock authentication failed", err)
		pe.Hint = fmt.Sprintf("Ensure your AWS credentials are configured and you have access to Bedrock in %s", p.region)
		return pe
	}
	return classifyTransport(bedrockName, err)
}
