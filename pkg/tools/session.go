// Package tools runs the work item operations exposed to the CLI and the
// stdio tool surface.
//
// A Session owns every collaborator an operation needs and a single-slot
// cache of the last query's records for follow-up analysis.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"thoreinstein.com/wit/pkg/ado"
	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/fields"
	"thoreinstein.com/wit/pkg/intent"
	"thoreinstein.com/wit/pkg/summarize"
	"thoreinstein.com/wit/pkg/wiql"
	"thoreinstein.com/wit/pkg/workitem"
)

// DefaultCacheTTL is how long cached records stay eligible for follow-up
// analysis.
const DefaultCacheTTL = 30 * time.Minute

// Limits bounds query sizes.
type Limits struct {
	DefaultMaxItems int
	MaxItems        int
	MaxComments     int
}

// DefaultLimits returns the standard query limits.
func DefaultLimits() Limits {
	return Limits{
		DefaultMaxItems: wiql.DefaultMaxItems,
		MaxItems:        wiql.MaxItemsLimit,
		MaxComments:     50,
	}
}

// CacheEntry is the last query's normalized records.
type CacheEntry struct {
	Items     []workitem.Record
	Query     string
	Timestamp time.Time
}

// Session carries the collaborators shared by all tool calls.
type Session struct {
	client     ado.Client
	normalizer *workitem.Normalizer
	parser     intent.Parser
	heuristic  intent.Parser
	analyzer   *summarize.Analyzer
	limits     Limits
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu    sync.Mutex
	cache *CacheEntry
}

// Option configures a Session.
type Option func(*Session)

// WithParser sets the parser used when AI parsing is requested.
func WithParser(p intent.Parser) Option {
	return func(s *Session) { s.parser = p }
}

// WithHeuristicParser sets the parser used when AI parsing is disabled.
func WithHeuristicParser(p intent.Parser) Option {
	return func(s *Session) { s.heuristic = p }
}

// WithAnalyzer sets the summarization collaborator.
func WithAnalyzer(a *summarize.Analyzer) Option {
	return func(s *Session) { s.analyzer = a }
}

// WithNormalizer sets the record normalizer.
func WithNormalizer(n *workitem.Normalizer) Option {
	return func(s *Session) { s.normalizer = n }
}

// WithLimits sets query size limits. Zero values keep the defaults.
func WithLimits(l Limits) Option {
	return func(s *Session) {
		if l.DefaultMaxItems > 0 {
			s.limits.DefaultMaxItems = l.DefaultMaxItems
		}
		if l.MaxItems > 0 {
			s.limits.MaxItems = l.MaxItems
		}
		if l.MaxComments > 0 {
			s.limits.MaxComments = l.MaxComments
		}
	}
}

// WithCacheTTL sets how long cached records remain usable.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a Session over client.
func NewSession(client ado.Client, opts ...Option) *Session {
	heuristic := intent.NewHeuristicParser()
	s := &Session{
		client:     client,
		normalizer: workitem.NewNormalizer(nil),
		parser:     heuristic,
		heuristic:  heuristic,
		analyzer:   summarize.NewAnalyzer(nil),
		limits:     DefaultLimits(),
		ttl:        DefaultCacheTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryParams are the inputs of QueryWorkItems.
type QueryParams struct {
	Query               string          `json:"query" jsonschema:"description=Natural-language request."`
	MaxItems            int             `json:"max_items,omitempty" jsonschema:"minimum=1,maximum=250"`
	IncludeComments     *bool           `json:"include_comments,omitempty" jsonschema:"description=Fetch discussion comments. Defaults to true."`
	UseAIParser         *bool           `json:"use_ai_parser,omitempty" jsonschema:"description=Parse the request with the LLM. Defaults to true."`
	Spec                *wiql.QuerySpec `json:"spec,omitempty" jsonschema:"description=Explicit query specification. Skips parsing."`
	AnalysisPrompt      string          `json:"analysis_prompt,omitempty" jsonschema:"description=Analysis to run over the results."`
	IndividualSummaries bool            `json:"individual_summaries,omitempty"`
}

// QueryResult is the output of QueryWorkItems.
type QueryResult struct {
	RunID               string            `json:"run_id"`
	WIQLQuery           string            `json:"wiql_query"`
	Count               int               `json:"count"`
	Items               []workitem.Record `json:"items"`
	Summary             string            `json:"summary"`
	IndividualSummaries map[int]string    `json:"individual_summaries"`
}

// QueryWorkItems parses the request, runs the query and enriches the
// matching items. The records replace the session cache.
func (s *Session) QueryWorkItems(ctx context.Context, p QueryParams) (*QueryResult, error) {
	runID := uuid.NewString()
	log := s.log().With("run_id", runID)

	parsed, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	query, err := parsed.Query()
	if err != nil {
		return nil, err
	}

	top := s.maxItems(p.MaxItems, parsed.Spec.MaxItems)
	log.Debug("running query", "source", parsed.Source, "top", top)

	ids, err := s.client.QueryIDs(ctx, query, top)
	if err != nil {
		return nil, witerrors.Wrap(err, "query work items")
	}

	result := &QueryResult{
		RunID:               runID,
		WIQLQuery:           query,
		Items:               []workitem.Record{},
		IndividualSummaries: map[int]string{},
	}
	if len(ids) == 0 {
		result.Summary = "No work items found for query: " + p.Query
		return result, nil
	}

	records, err := s.enrich(ctx, ids, boolOr(p.IncludeComments, true))
	if err != nil {
		return nil, err
	}
	log.Debug("enriched work items", "ids", len(ids), "records", len(records))

	s.store(records, p.Query)

	result.Items = records
	result.Count = len(records)

	prompt := parsed.Spec.AnalysisPrompt
	if p.AnalysisPrompt != "" {
		prompt = p.AnalysisPrompt
	}
	if prompt != "" && len(records) > 0 {
		summary, err := s.analyzer.Analyze(ctx, prompt, workitem.FromRecords(records))
		if err != nil {
			log.Debug("inline analysis failed", "error", err)
			summary = fmt.Sprintf("[Freeform analysis error: %v]", err)
		}
		result.Summary = summary
	}

	if p.IndividualSummaries {
		result.IndividualSummaries = s.analyzer.Summaries(ctx, records)
	}

	return result, nil
}

func (s *Session) resolve(ctx context.Context, p QueryParams) (*intent.Result, error) {
	if p.Spec != nil {
		return &intent.Result{Spec: *p.Spec, Source: "explicit"}, nil
	}
	parser := s.heuristic
	if boolOr(p.UseAIParser, true) {
		parser = s.parser
	}
	return parser.Parse(ctx, p.Query)
}

func (s *Session) maxItems(requested, parsed int) int {
	n := requested
	if n <= 0 {
		n = parsed
	}
	if n <= 0 {
		n = s.limits.DefaultMaxItems
	}
	return min(n, s.limits.MaxItems, wiql.MaxItemsLimit)
}

// enrich batch-fetches ids, attaches comments and history, and returns
// records in the order the batch returned them.
func (s *Session) enrich(ctx context.Context, ids []int, includeComments bool) ([]workitem.Record, error) {
	raws, err := s.client.Batch(ctx, ids)
	if err != nil {
		return nil, witerrors.Wrap(err, "fetch work items")
	}

	fetched := make([]int, len(raws))
	for i, r := range raws {
		fetched[i] = r.ID
	}

	comments := map[int][]workitem.Comment{}
	if includeComments {
		comments = s.client.CommentsConditional(ctx, raws, s.limits.MaxComments)
	}
	updates := s.client.UpdatesParallel(ctx, fetched, 0)

	records := make([]workitem.Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, s.normalizer.Normalize(raw, comments[raw.ID], updates[raw.ID]))
	}
	return records, nil
}

// ErrNotFound reports a work item id with no match.
var ErrNotFound = witerrors.New("Work item not found")

// GetWorkItem fetches and normalizes one work item.
func (s *Session) GetWorkItem(ctx context.Context, id int, includeComments bool) (*workitem.Record, error) {
	raws, err := s.client.Batch(ctx, []int{id})
	if err != nil {
		return nil, witerrors.Wrap(err, "fetch work item")
	}
	if len(raws) == 0 {
		return nil, ErrNotFound
	}

	var comments []workitem.Comment
	if includeComments {
		if comments, err = s.client.Comments(ctx, id, s.limits.MaxComments); err != nil {
			s.log().Debug("comments unavailable", "id", id, "error", err)
			comments = nil
		}
	}
	updates, err := s.client.Updates(ctx, id)
	if err != nil {
		s.log().Debug("updates unavailable", "id", id, "error", err)
		updates = nil
	}

	rec := s.normalizer.Normalize(raws[0], comments, updates)
	return &rec, nil
}

// SummarizeItems analyzes caller-supplied items. A non-empty detail sizes the
// answer budget.
func (s *Session) SummarizeItems(ctx context.Context, items []workitem.Item, prompt, detail string) (string, error) {
	return s.analyzer.AnalyzeDetail(ctx, prompt, items, detail)
}

// SummarizeCached analyzes the last query's records. It fails when nothing
// is cached or the cache is older than the TTL.
func (s *Session) SummarizeCached(ctx context.Context, prompt, detail string) (string, *CacheEntry, error) {
	entry, ok := s.Cached()
	if !ok {
		return "", nil, witerrors.NewQueryError("cache", "no recent query results; run query_work_items first")
	}
	summary, err := s.analyzer.AnalyzeDetail(ctx, prompt, workitem.FromRecords(entry.Items), detail)
	return summary, entry, err
}

// FieldExplanation describes a field.
type FieldExplanation struct {
	Field           string   `json:"field"`
	ReferenceName   string   `json:"reference_name"`
	Explanation     string   `json:"explanation"`
	Type            string   `json:"type,omitempty"`
	Operators       []string `json:"operators,omitempty"`
	RecordAttribute string   `json:"record_attribute,omitempty"`
	States          []string `json:"states,omitempty"`
}

// ExplainField resolves a field name and describes it. workItemType may be
// empty; for the state field it selects the states to list.
func (s *Session) ExplainField(name, workItemType string) FieldExplanation {
	e := fields.Explain(name, workItemType)
	return FieldExplanation{
		Field:           name,
		ReferenceName:   e.ReferenceName,
		Explanation:     e.Text,
		Type:            string(e.Type),
		Operators:       e.Operators,
		RecordAttribute: e.RecordAttribute,
		States:          e.States,
	}
}

// Cached returns the cache entry if it is still within the TTL.
func (s *Session) Cached() (*CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil || s.now().Sub(s.cache.Timestamp) > s.ttl {
		return nil, false
	}
	entry := *s.cache
	return &entry, true
}

func (s *Session) store(records []workitem.Record, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = &CacheEntry{Items: records, Query: query, Timestamp: s.now()}
}

func (s *Session) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.New(slog.DiscardHandler)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
