// Package ai provides LLM chat backends for query parsing and analysis.
//
// Every backend implements Provider: role-tagged messages and a completion
// token budget go in, text and a truncation flag come out. Complete layers
// budget escalation on top of any Provider.
package ai

import (
	"context"
	"log/slog"
	"os"

	"thoreinstein.com/wit/pkg/config"
	witerrors "thoreinstein.com/wit/pkg/errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// ChatRequest is one completion call.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int      // Completion budget; 0 uses the provider default
	Temperature *float64 // nil uses the provider default
	Schema      *Schema  // Structured answer; providers without support rely on the prompt
}

// Schema is a named JSON schema the answer must match.
type Schema struct {
	Name   string
	Schema map[string]any
}

// Float returns a pointer to v, for ChatRequest.Temperature.
func Float(v float64) *float64 {
	return &v
}

// Response from AI provider.
type Response struct {
	Content      string
	FinishReason string // Provider-specific, e.g. "stop", "length", "max_tokens"
	Truncated    bool   // Output stopped at the token budget
	InputTokens  int
	OutputTokens int
}

// Provider interface for AI operations.
type Provider interface {
	// IsAvailable checks if provider is available and configured.
	IsAvailable() bool

	// Chat performs a single completion within req.MaxTokens.
	Chat(ctx context.Context, req ChatRequest) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Provider name constants.
const (
	ProviderAzureOpenAI = "azure_openai"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderOllama      = "ollama"
	ProviderGemini      = "gemini"
)

// Conversation builds a system + user message pair.
func Conversation(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// NewProvider creates an AI provider based on config.
// Environment variables take precedence over config file values for API keys.
func NewProvider(cfg *config.AIConfig, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, witerrors.NewConfigError("ai", "config is nil")
	}

	if !cfg.Enabled {
		return nil, witerrors.NewConfigError("ai.enabled", "AI is disabled in configuration")
	}

	switch cfg.Provider {
	case ProviderAzureOpenAI:
		apiKey := resolveAPIKey(cfg.APIKey, "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, witerrors.NewConfigError("ai.api_key",
				"Azure OpenAI API key not set (set AZURE_OPENAI_API_KEY or ai.api_key in config)")
		}
		if cfg.Endpoint == "" {
			return nil, witerrors.NewConfigError("ai.endpoint",
				"Azure OpenAI endpoint not set (set AZURE_OPENAI_ENDPOINT or ai.endpoint in config)")
		}
		deployment := cfg.Deployment
		if deployment == "" {
			deployment = cfg.Model
		}
		if deployment == "" {
			return nil, witerrors.NewConfigError("ai.deployment",
				"Azure OpenAI deployment not set (set AZURE_OPENAI_DEPLOYMENT or ai.deployment in config)")
		}
		return NewAzureOpenAIProvider(cfg.Endpoint, cfg.APIVersion, apiKey, deployment, logger), nil

	case ProviderOpenAI:
		apiKey := resolveAPIKey(cfg.APIKey, "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, witerrors.NewConfigError("ai.api_key",
				"OpenAI API key not set (set OPENAI_API_KEY or ai.api_key in config)")
		}
		return NewOpenAIProvider(apiKey, cfg.Model, cfg.Endpoint, logger), nil

	case ProviderAnthropic:
		apiKey := resolveAPIKey(cfg.APIKey, "ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, witerrors.NewConfigError("ai.api_key",
				"Anthropic API key not set (set ANTHROPIC_API_KEY or ai.api_key in config)")
		}
		return NewAnthropicProvider(apiKey, cfg.Model, cfg.Endpoint, logger), nil

	case ProviderOllama:
		return NewOllamaProvider(cfg.Endpoint, cfg.Model, logger), nil

	case ProviderGemini:
		apiKey := resolveAPIKey(cfg.APIKey, "GOOGLE_GENAI_API_KEY")
		if apiKey == "" {
			return nil, witerrors.NewConfigError("ai.api_key",
				"Gemini API key not set (set GOOGLE_GENAI_API_KEY or ai.api_key in config)")
		}
		return NewGeminiProvider(apiKey, cfg.Model, logger), nil

	default:
		return nil, witerrors.NewConfigError("ai.provider",
			"unsupported AI provider: "+cfg.Provider+" (supported: azure_openai, openai, anthropic, ollama, gemini)")
	}
}

// resolveAPIKey returns the API key from envVar if set, otherwise falls back
// to the config value.
func resolveAPIKey(configKey, envVar string) string {
	if envKey := os.Getenv(envVar); envKey != "" {
		return envKey
	}
	return configKey
}
