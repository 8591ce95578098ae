package ai

import (
	"context"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

// DefaultMaxTokens is the ceiling for budget escalation.
const DefaultMaxTokens = 8000

// DefaultRetryTokenSizes is the budget ladder for short per-item outputs.
var DefaultRetryTokenSizes = []int{800, 1200, 1800, 2500, 3500, 5000}

// Budget bounds one Complete call.
type Budget struct {
	Initial int // First attempt's completion budget
	Max     int // Escalation ceiling
}

// Complete asks p for a completion and, while the answer is cut off at the
// budget, retries with half again as many tokens up to b.Max. It returns the
// last response; Truncated stays set when even the ceiling was not enough.
func Complete(ctx context.Context, p Provider, messages []Message, b Budget) (*Response, error) {
	return CompleteRequest(ctx, p, ChatRequest{Messages: messages}, b)
}

// CompleteRequest is Complete for a full request. req.MaxTokens is replaced
// by the budget.
func CompleteRequest(ctx context.Context, p Provider, req ChatRequest, b Budget) (*Response, error) {
	if p == nil || !p.IsAvailable() {
		return nil, witerrors.NewAIError("none", "Complete", "no AI provider available")
	}

	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = DefaultMaxTokens
	}
	budget := b.Initial
	if budget <= 0 || budget > ceiling {
		budget = min(2000, ceiling)
	}

	for {
		req.MaxTokens = budget
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		if !resp.Truncated || budget >= ceiling {
			return resp, nil
		}

		next := min(int(float64(budget)*1.5), ceiling)
		if next <= budget {
			return resp, nil
		}
		budget = next
	}
}

// CompleteWithSizes walks a fixed budget ladder until accept approves an
// answer. A nil accept approves any answer that is not truncated. A failed
// call moves on to the next size. It returns the approved response, or the
// last response and false when none was approved; the error is set only when
// every call failed.
func CompleteWithSizes(ctx context.Context, p Provider, messages []Message, sizes []int, accept func(*Response) bool) (*Response, bool, error) {
	if p == nil || !p.IsAvailable() {
		return nil, false, witerrors.NewAIError("none", "Complete", "no AI provider available")
	}
	if len(sizes) == 0 {
		sizes = DefaultRetryTokenSizes
	}
	if accept == nil {
		accept = func(r *Response) bool { return !r.Truncated }
	}

	var last *Response
	var lastErr error
	for _, size := range sizes {
		resp, err := p.Chat(ctx, ChatRequest{Messages: messages, MaxTokens: size})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if accept(resp) {
			return resp, true, nil
		}
		last = resp
	}
	if last == nil {
		return nil, false, lastErr
	}
	return last, false, nil
}

// Detail levels accepted by EstimateTokens.
const (
	DetailSummary       = "summary"
	DetailDetailed      = "detailed"
	DetailComprehensive = "comprehensive"
)

// EstimateTokens suggests a completion budget for an analysis over
// itemCount items at the given detail level.
func EstimateTokens(detail string, itemCount int) int {
	size := 0
	switch {
	case itemCount > 20:
		size = 2
	case itemCount > 5:
		size = 1
	}

	var row [3]int
	switch detail {
	case DetailDetailed:
		row = [3]int{2000, 3000, 4500}
	case DetailComprehensive:
		row = [3]int{3000, 4500, 6000}
	default:
		row = [3]int{1000, 1500, 2500}
	}
	return min(row[size], DefaultMaxTokens)
}

// Ping sends a one-line prompt to check that the provider answers.
func Ping(ctx context.Context, p Provider) (*Response, error) {
	if p == nil || !p.IsAvailable() {
		return nil, witerrors.NewAIError("none", "Ping", "no AI provider available")
	}
	return p.Chat(ctx, ChatRequest{
		Messages:  []Message{{Role: RoleUser, Content: "Reply with the single word OK."}},
		MaxTokens: 50,
	})
}
