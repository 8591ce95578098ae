package ai

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

const (
	openaiDefaultModel     = "gpt-4o-mini"
	openaiDefaultTokens    = 2000
	azureDefaultAPIVersion = "2024-12-01-preview"
)

// OpenAIProvider implements Provider for OpenAI chat completions, either
// against api.openai.com or an Azure OpenAI deployment.
type OpenAIProvider struct {
	name   string
	model  string
	logger *slog.Logger
	client openai.Client
	ready  bool
}

// NewOpenAIProvider creates a provider for the OpenAI API. A non-empty
// baseURL targets a compatible endpoint instead.
func NewOpenAIProvider(apiKey, model, baseURL string, logger *slog.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = openaiDefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIProvider{
		name:   ProviderOpenAI,
		model:  model,
		logger: logger,
		client: openai.NewClient(reqOpts...),
		ready:  apiKey != "",
	}
}

// NewAzureOpenAIProvider creates a provider for an Azure OpenAI deployment.
// The deployment name is sent as the model.
func NewAzureOpenAIProvider(endpoint, apiVersion, apiKey, deployment string, logger *slog.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if apiVersion == "" {
		apiVersion = azureDefaultAPIVersion
	}
	reqOpts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIProvider{
		name:   ProviderAzureOpenAI,
		model:  deployment,
		logger: logger,
		client: openai.NewClient(reqOpts...),
		ready:  apiKey != "" && endpoint != "" && deployment != "",
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable checks if the provider is configured and ready.
func (p *OpenAIProvider) IsAvailable() bool {
	return p.ready
}

// Chat performs a single chat completion.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	if !p.IsAvailable() {
		return nil, witerrors.NewAIError(p.name, "Chat", "provider not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = openaiDefaultTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               p.model,
		Messages:            p.convertMessages(req.Messages),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: req.Schema.Schema,
					Strict: openai.Bool(false),
				},
			},
		}
	}

	p.logDebug("sending chat request", "model", p.model, "message_count", len(req.Messages), "max_tokens", maxTokens)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, witerrors.NewAIError(p.name, "Chat", "no choices in response")
	}

	choice := resp.Choices[0]
	finish := string(choice.FinishReason)

	p.logDebug("received response",
		"finish_reason", finish,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return &Response{
		Content:      choice.Message.Content,
		FinishReason: finish,
		Truncated:    finish == "length",
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAIProvider) convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// wrapError maps SDK errors onto AIError, keeping the HTTP status so rate
// limits and server errors stay retryable.
func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if witerrors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		aiErr := witerrors.NewAIErrorWithStatus(p.name, "Chat", apiErr.StatusCode, msg)
		aiErr.Cause = err
		return aiErr
	}
	return witerrors.NewAIErrorWithCause(p.name, "Chat", "request failed", err)
}

func (p *OpenAIProvider) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
