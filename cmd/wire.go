package cmd

import (
	"log/slog"

	"thoreinstein.com/wit/pkg/ado"
	"thoreinstein.com/wit/pkg/ai"
	"thoreinstein.com/wit/pkg/auth"
	"thoreinstein.com/wit/pkg/bootstrap"
	"thoreinstein.com/wit/pkg/config"
	"thoreinstein.com/wit/pkg/intent"
	"thoreinstein.com/wit/pkg/summarize"
	"thoreinstein.com/wit/pkg/tools"
	"thoreinstein.com/wit/pkg/workitem"
)

// deps are the collaborators built from configuration for one command run.
type deps struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   ado.Client
	provider ai.Provider
	session  *tools.Session
}

// buildDeps validates cfg and wires the ADO client, the AI provider and the
// tool session. A missing or disabled AI provider is not an error; parsing
// then uses the built-in rules and analysis reports that no model is
// configured.
func buildDeps(cfg *config.Config) (*deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := bootstrap.NewLogger(verbose)

	tokens, err := auth.NewTokenSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := ado.NewAPIClient(cfg, tokens, ado.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, logger: logger, client: client}

	provider, err := ai.NewProvider(&cfg.AI, logger)
	if err != nil {
		logger.Debug("AI provider unavailable, using rule-based parsing", "error", err)
	} else {
		d.provider = provider
	}

	d.session = newSession(cfg, client, d.provider, logger)
	return d, nil
}

// newParser returns the AI parser followed by the rule-based one, or just
// the rules when no provider is configured.
func newParser(cfg *config.Config, provider ai.Provider, heuristic intent.Parser, logger *slog.Logger) *intent.Chain {
	parsers := []intent.Parser{}
	if provider != nil {
		parsers = append(parsers, intent.NewAIParser(provider,
			intent.WithBudget(ai.Budget{Initial: cfg.AI.ParserTokens, Max: cfg.AI.MaxTokens}),
			intent.WithAttempts(cfg.AI.ParserMaxAttempts),
			intent.WithLogger(logger),
		))
	}
	return intent.NewChain(logger, append(parsers, heuristic)...)
}

func newSession(cfg *config.Config, client ado.Client, provider ai.Provider, logger *slog.Logger) *tools.Session {
	heuristic := intent.NewHeuristicParser()

	analyzer := summarize.NewAnalyzer(provider,
		summarize.WithBudget(ai.Budget{Initial: cfg.AI.AnalysisTokens, Max: cfg.AI.MaxTokens}),
		summarize.WithRetrySizes(cfg.AI.RetryTokenSizes),
		summarize.WithMaxItems(cfg.Query.MaxItems),
		summarize.WithLogger(logger),
	)

	return tools.NewSession(client,
		tools.WithParser(newParser(cfg, provider, heuristic, logger)),
		tools.WithHeuristicParser(heuristic),
		tools.WithAnalyzer(analyzer),
		tools.WithNormalizer(workitem.NewNormalizer(cfg.ADO.InternalDomains)),
		tools.WithLimits(tools.Limits{
			DefaultMaxItems: cfg.Query.DefaultMaxItems,
			MaxItems:        cfg.Query.MaxItems,
			MaxComments:     cfg.Query.MaxComments,
		}),
		tools.WithCacheTTL(cfg.Cache.TTL),
		tools.WithLogger(logger),
	)
}
