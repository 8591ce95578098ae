// Package intent turns a natural-language request into a query
// specification.
//
// Strategies implement Parser. A Chain runs them in order and returns the
// first result; when every strategy fails the returned QueryError carries
// each strategy's cause.
package intent

import (
	"context"
	"log/slog"
	"strings"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/wiql"
)

// Result sources.
const (
	SourceAI        = "ai"
	SourceHeuristic = "heuristic"
)

// Result is a parsed request.
type Result struct {
	Spec wiql.QuerySpec

	// WIQL holds a complete query supplied by the parser that bypasses
	// compilation. Empty means Spec must be compiled.
	WIQL string

	Source string
}

// Query returns the WIQL to execute for r.
func (r *Result) Query() (string, error) {
	if r.WIQL != "" {
		return r.WIQL, nil
	}
	return wiql.Compile(r.Spec)
}

// Parser converts a request into a Result.
type Parser interface {
	Parse(ctx context.Context, query string) (*Result, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, query string) (*Result, error)

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, query string) (*Result, error) {
	return f(ctx, query)
}

// Chain tries each parser in order.
type Chain struct {
	parsers []Parser
	logger  *slog.Logger
}

// NewChain returns a chain over parsers, skipping nil entries.
func NewChain(logger *slog.Logger, parsers ...Parser) *Chain {
	c := &Chain{logger: logger}
	for _, p := range parsers {
		if p != nil {
			c.parsers = append(c.parsers, p)
		}
	}
	return c
}

// Parse returns the first successful result.
func (c *Chain) Parse(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, witerrors.NewQueryError("parse", "query is empty")
	}
	if len(c.parsers) == 0 {
		return nil, witerrors.NewQueryError("parse", "no parsers configured")
	}

	var causes []error
	for _, p := range c.parsers {
		res, err := p.Parse(ctx, query)
		if err == nil {
			return res, nil
		}
		if c.logger != nil {
			c.logger.Debug("parser failed, trying next", "error", err)
		}
		causes = append(causes, err)
	}

	return nil, witerrors.NewQueryErrorWithCause("parse",
		"could not understand the request", witerrors.Join(causes...))
}

// hasSelectPrefix reports whether text starts with a WIQL SELECT.
func hasSelectPrefix(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) >= 6 && strings.EqualFold(text[:6], "SELECT")
}
