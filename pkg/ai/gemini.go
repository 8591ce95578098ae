package ai

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements Provider using the Genkit SDK.
type GeminiProvider struct {
	apiKey    string
	modelName string
	logger    *slog.Logger

	initOnce sync.Once
	model    ai.Model
	initErr  error
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey, modelName string, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		logger:    logger,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

// IsAvailable checks if the provider is configured.
func (p *GeminiProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// init initializes the Genkit client and model once.
func (p *GeminiProvider) init(ctx context.Context) error {
	p.initOnce.Do(func() {
		// A model injected by a test skips Genkit entirely.
		if p.model != nil {
			return
		}

		if p.apiKey == "" {
			p.initErr = witerrors.NewAIError(ProviderGemini, "init", "API key not set")
			return
		}

		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: p.apiKey}))

		modelName := p.modelName
		if modelName == "" {
			modelName = geminiDefaultModel
		}
		fullModelName := modelName
		if !strings.Contains(fullModelName, "/") {
			fullModelName = "googleai/" + fullModelName
		}

		p.model = googlegenai.GoogleAIModel(g, fullModelName)
		if p.model == nil {
			p.initErr = witerrors.NewAIError(ProviderGemini, "init", "failed to get model: "+fullModelName)
			return
		}

		p.logDebug("gemini provider initialized", "model", fullModelName)
	})

	return p.initErr
}

// Chat performs a single completion using the Genkit SDK.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	modelReq := &ai.ModelRequest{Messages: p.toGenkitMessages(req.Messages)}
	if req.MaxTokens > 0 || req.Temperature != nil {
		cfg := &ai.GenerationCommonConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature != nil {
			cfg.Temperature = *req.Temperature
		}
		modelReq.Config = cfg
	}
	if req.Schema != nil {
		modelReq.Output = &ai.ModelOutputConfig{
			Format:      "json",
			ContentType: "application/json",
			Schema:      req.Schema.Schema,
		}
	}

	p.logDebug("sending chat request to gemini", "message_count", len(modelReq.Messages))

	resp, err := p.model.Generate(ctx, modelReq, nil)
	if err != nil {
		return nil, witerrors.NewAIErrorWithCause(ProviderGemini, "Chat", "genkit generate failed", err)
	}

	if resp.Message == nil {
		return nil, witerrors.NewAIError(ProviderGemini, "Chat", "received empty response from gemini")
	}

	var content strings.Builder
	for _, part := range resp.Message.Content {
		if part.IsText() {
			content.WriteString(part.Text)
		}
	}

	res := &Response{
		Content:      content.String(),
		FinishReason: string(resp.FinishReason),
		Truncated:    resp.FinishReason == ai.FinishReasonLength,
	}
	if resp.Usage != nil {
		res.InputTokens = resp.Usage.InputTokens
		res.OutputTokens = resp.Usage.OutputTokens
	}

	return res, nil
}

func (p *GeminiProvider) toGenkitMessages(messages []Message) []*ai.Message {
	genkitMessages := make([]*ai.Message, len(messages))
	for i, m := range messages {
		role := ai.RoleUser
		switch m.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		}
		genkitMessages[i] = &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		}
	}
	return genkitMessages
}

func (p *GeminiProvider) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
