package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"thoreinstein.com/wit/pkg/ai"
	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/workitem"
)

// Analysis defaults.
const (
	DefaultAnalysisTokens = 10000
	DefaultPrompt         = "Provide a professional overview of these work items."
	NoItemsMessage        = "No work items available for analysis."

	// minSummaryLen is the shortest per-item answer accepted before the
	// next budget on the ladder is tried.
	minSummaryLen = 100
)

const analysisSystem = `You are an Azure DevOps work item analysis assistant.
Input is a compact JSON list of work items. Each item has a "shape" of "normalized" or "raw".
Never fabricate fields. Report only patterns the data supports: state distribution, priority hotspots, stale or unassigned items, comment activity.
Answer the user's request directly with structured, concise output.`

const itemSystem = `You are an Azure DevOps analyst. Write exactly two professional sentences summarizing the work item: its current status and owner, its purpose, and any risk or recent activity. Do not repeat the id or title verbatim.`

// Analyzer runs LLM analysis over work items.
type Analyzer struct {
	provider ai.Provider
	cleaner  *Cleaner
	budget   ai.Budget
	sizes    []int
	maxItems int
	logger   *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBudget sets the token budget for freeform analysis.
func WithBudget(b ai.Budget) Option {
	return func(a *Analyzer) { a.budget = b }
}

// WithRetrySizes sets the budget ladder for per-item summaries.
func WithRetrySizes(sizes []int) Option {
	return func(a *Analyzer) {
		if len(sizes) > 0 {
			a.sizes = sizes
		}
	}
}

// WithMaxItems caps how many items are sent in one analysis.
func WithMaxItems(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxItems = n
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an Analyzer over provider. A nil provider is allowed;
// analysis then fails with an AIError and per-item summaries fall back to
// rule-based text.
func NewAnalyzer(provider ai.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		cleaner:  NewCleaner(),
		budget:   ai.Budget{Initial: DefaultAnalysisTokens, Max: DefaultAnalysisTokens},
		sizes:    ai.DefaultRetryTokenSizes,
		maxItems: DefaultMaxItems,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.budget.Max < a.budget.Initial {
		a.budget.Max = a.budget.Initial
	}
	return a
}

// Analyze answers prompt over items with the configured budget. An empty
// prompt asks for a general overview.
func (a *Analyzer) Analyze(ctx context.Context, prompt string, items []workitem.Item) (string, error) {
	return a.AnalyzeDetail(ctx, prompt, items, "")
}

// AnalyzeDetail is Analyze with the first budget sized for detail
// (ai.DetailSummary, ai.DetailDetailed or ai.DetailComprehensive) and the
// number of items. An empty detail keeps the configured budget.
func (a *Analyzer) AnalyzeDetail(ctx context.Context, prompt string, items []workitem.Item, detail string) (string, error) {
	if len(items) == 0 {
		return NoItemsMessage, nil
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	compact := a.cleaner.Compact(items, a.maxItems)
	data, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return "", witerrors.Wrap(err, "encode items for analysis")
	}

	user := fmt.Sprintf("User request: %s\n\nWork items (JSON):\n%s\n\nAnalyze this data according to the request above.", prompt, data)

	budget := a.budget
	if detail != "" {
		budget.Initial = min(ai.EstimateTokens(detail, len(compact)), budget.Max)
	}
	a.logDebug("starting analysis", "items", len(compact), "detail", detail, "budget", budget.Initial)

	resp, err := ai.Complete(ctx, a.provider, ai.Conversation(analysisSystem, user), budget)
	if err != nil {
		return "", err
	}
	if resp.Truncated {
		a.logDebug("analysis still truncated at ceiling", "max", budget.Max)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Summaries writes a short summary for each record, keyed by id. Records the
// model cannot summarize get a rule-based summary instead.
func (a *Analyzer) Summaries(ctx context.Context, records []workitem.Record) map[int]string {
	out := make(map[int]string, len(records))
	for i := range records {
		out[records[i].ID] = a.summarizeOne(ctx, &records[i])
	}
	return out
}

func (a *Analyzer) summarizeOne(ctx context.Context, r *workitem.Record) string {
	if a.provider == nil || !a.provider.IsAvailable() {
		return FallbackSummary(r)
	}

	priority := "N/A"
	if r.Priority != nil {
		priority = fmt.Sprintf("P%d", *r.Priority)
	}
	assigned := r.AssignedTo
	if assigned == "" {
		assigned = "Unassigned"
	}
	user := fmt.Sprintf("ID: %d\nTitle: %s\nType: %s\nState: %s\nPriority: %s\nAssigned: %s\nComments: %d",
		r.ID, truncate(r.Title, 150), r.Type, r.State, priority, assigned, r.CommentCount)

	resp, ok, err := ai.CompleteWithSizes(ctx, a.provider, ai.Conversation(itemSystem, user), a.sizes, longEnough)
	if ok {
		return strings.TrimSpace(resp.Content)
	}

	a.logDebug("item summary fell back to rules", "id", r.ID, "error", err)
	return FallbackSummary(r)
}

func longEnough(resp *ai.Response) bool {
	return len(strings.TrimSpace(resp.Content)) > minSummaryLen
}

// FallbackSummary describes a record from its fields alone.
func FallbackSummary(r *workitem.Record) string {
	state := r.State
	if state == "" {
		state = "Unknown"
	}
	kind := strings.ToLower(r.Type)
	if kind == "" {
		kind = "item"
	}

	var first string
	switch strings.ToLower(state) {
	case "active", "closed", "completed":
		first = strings.ToUpper(state[:1]) + strings.ToLower(state[1:]) + " work item"
	default:
		first = state + " work item"
	}
	if r.AssignedTo != "" {
		first += " assigned to " + r.AssignedTo
	} else {
		first += " currently unassigned"
	}

	var details []string
	if r.Priority != nil && (*r.Priority == 1 || *r.Priority == 2) {
		details = append(details, fmt.Sprintf("marked as P%d priority", *r.Priority))
	}
	switch {
	case r.PartnerCommentCount > 0:
		details = append(details, fmt.Sprintf("with %d external %s", r.PartnerCommentCount, plural(r.PartnerCommentCount, "comment")))
	case r.CommentCount > 5:
		details = append(details, fmt.Sprintf("with active discussion (%d comments)", r.CommentCount))
	case r.CommentCount > 0:
		details = append(details, fmt.Sprintf("with %d %s", r.CommentCount, plural(r.CommentCount, "comment")))
	}

	second := "This " + kind + " requires attention to move forward"
	if len(details) > 0 {
		second = "This " + kind + " is " + strings.Join(details, ", ")
	}
	return first + ". " + second + "."
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func (a *Analyzer) logDebug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
