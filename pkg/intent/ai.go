package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"

	"thoreinstein.com/wit/pkg/ai"
	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/fields"
	"thoreinstein.com/wit/pkg/wiql"
)

// Defaults for AI parsing.
const (
	DefaultParserTokens = 2000
	DefaultAttempts     = 3
)

// answer is the JSON object the model is asked to return. It is either a
// query spec or a direct WIQL query.
type answer struct {
	wiql.QuerySpec

	WIQLQuery          string `json:"wiql_query,omitempty" jsonschema:"description=Complete WIQL query. Set direct_wiql when used."`
	DirectWIQL         bool   `json:"direct_wiql,omitempty"`
	HasAnalysisRequest bool   `json:"has_analysis_request,omitempty" jsonschema:"description=True when the request also asks for a summary or analysis."`
}

// AIParser asks an LLM to produce the query specification.
type AIParser struct {
	provider ai.Provider
	budget   ai.Budget
	attempts int
	logger   *slog.Logger
	system   string
	schema   map[string]any
}

// AIOption configures an AIParser.
type AIOption func(*AIParser)

// WithBudget sets the completion budget for each parse attempt.
func WithBudget(b ai.Budget) AIOption {
	return func(p *AIParser) { p.budget = b }
}

// WithAttempts sets how many times a bad answer is retried.
func WithAttempts(n int) AIOption {
	return func(p *AIParser) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithLogger sets the parser logger.
func WithLogger(l *slog.Logger) AIOption {
	return func(p *AIParser) { p.logger = l }
}

// NewAIParser creates a parser backed by provider.
func NewAIParser(provider ai.Provider, opts ...AIOption) *AIParser {
	p := &AIParser{
		provider: provider,
		budget:   ai.Budget{Initial: DefaultParserTokens, Max: ai.DefaultMaxTokens},
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	schema := answerSchema()
	p.schema = make(map[string]any)
	_ = json.Unmarshal(schema, &p.schema)
	p.system = systemPrompt(schema)
	return p
}

func answerSchema() []byte {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema, err := json.Marshal(reflector.Reflect(&answer{}))
	if err != nil {
		return []byte("{}")
	}
	return schema
}

func systemPrompt(schema []byte) string {
	var b strings.Builder
	b.WriteString("You translate Azure DevOps work item requests into a JSON query specification.\n")
	b.WriteString("Reply with a single JSON object matching this schema and nothing else:\n")
	b.Write(schema)
	b.WriteString("\n\nUse filters and date_window where possible. ")
	b.WriteString("Only when the request cannot be expressed that way, set wiql_query to a complete query starting with SELECT and direct_wiql to true. ")
	b.WriteString("date_window.relative must be one of: ")
	b.WriteString(strings.Join(wiql.PeriodNames(), ", "))
	b.WriteString(". Direct WIQL may use these macros: ")
	b.WriteString(strings.Join(fields.Macros, ", "))
	b.WriteString(". ")
	b.WriteString("If the request also asks to summarize, analyze or report on the items, set has_analysis_request and put that instruction in analysis_prompt.")
	return b.String()
}

// Parse implements Parser.
func (p *AIParser) Parse(ctx context.Context, query string) (*Result, error) {
	if p.provider == nil || !p.provider.IsAvailable() {
		return nil, witerrors.NewAIError("none", "Parse", "no AI provider available")
	}

	req := ai.ChatRequest{
		Messages:    ai.Conversation(p.system, query),
		Temperature: ai.Float(0),
		Schema:      &ai.Schema{Name: "query_spec", Schema: p.schema},
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		resp, err := ai.CompleteRequest(ctx, p.provider, req, p.budget)
		if err != nil {
			if !witerrors.IsRetryable(err) {
				return nil, err
			}
			lastErr = err
			p.logDebug("parse attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if resp.Truncated {
			lastErr = witerrors.NewAIError(p.provider.Name(), "Parse", "answer truncated at token budget")
			p.logDebug("parse answer truncated", "attempt", attempt)
			continue
		}

		res, err := decodeAnswer(resp.Content, query)
		if err != nil {
			lastErr = err
			p.logDebug("parse answer rejected", "attempt", attempt, "error", err)
			continue
		}
		return res, nil
	}

	return nil, witerrors.NewQueryErrorWithCause("parse", "AI parser gave no usable answer", lastErr)
}

// decodeAnswer validates the model output. A bare SELECT statement is
// accepted as direct WIQL.
func decodeAnswer(content, query string) (*Result, error) {
	text := stripFences(content)
	if text == "" {
		return nil, witerrors.NewQueryError("parse", "empty answer")
	}

	if hasSelectPrefix(text) {
		if err := wiql.CheckQuery(text); err != nil {
			return nil, err
		}
		return &Result{WIQL: text, Source: SourceAI}, nil
	}

	var a answer
	if err := json.Unmarshal([]byte(extractObject(text)), &a); err != nil {
		return nil, witerrors.NewQueryErrorWithCause("parse", "answer is not valid JSON", err)
	}

	spec := a.QuerySpec
	if a.HasAnalysisRequest && strings.TrimSpace(spec.AnalysisPrompt) == "" {
		spec.AnalysisPrompt = query
	}

	if a.DirectWIQL || a.WIQLQuery != "" {
		if !hasSelectPrefix(a.WIQLQuery) {
			return nil, witerrors.NewQueryError("parse", "direct WIQL must start with SELECT")
		}
		if err := wiql.CheckQuery(a.WIQLQuery); err != nil {
			return nil, err
		}
		return &Result{
			Spec:   wiql.QuerySpec{MaxItems: spec.MaxItems, AnalysisPrompt: spec.AnalysisPrompt},
			WIQL:   strings.TrimSpace(a.WIQLQuery),
			Source: SourceAI,
		}, nil
	}

	if _, err := wiql.Compile(spec); err != nil {
		return nil, err
	}
	return &Result{Spec: spec, Source: SourceAI}, nil
}

// stripFences removes a surrounding markdown code fence, keeping only the
// fenced body.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractObject trims prose around the outermost JSON object.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func (p *AIParser) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
