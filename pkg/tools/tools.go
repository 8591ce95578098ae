package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/workitem"
)

// Tool names.
const (
	ToolQueryWorkItems       = "query_work_items"
	ToolGetWorkItem          = "get_work_item"
	ToolSummarizeItems       = "summarize_items"
	ToolSummarizeCachedItems = "summarize_cached_items"
	ToolExplainField         = "explain_field"
)

// Definition describes a tool for listing.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// WorkItemID accepts a JSON number or a numeric string.
type WorkItemID int

// UnmarshalJSON implements json.Unmarshaler.
func (id *WorkItemID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return witerrors.NewQueryError("get_work_item", fmt.Sprintf("invalid work item id %s", data))
	}
	*id = WorkItemID(n)
	return nil
}

// JSONSchema implements jsonschema's custom schema hook.
func (WorkItemID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", Pattern: `^\d+$`},
		},
		Description: "Work item id.",
	}
}

// GetParams are the inputs of get_work_item.
type GetParams struct {
	ID              WorkItemID `json:"id"`
	IncludeComments *bool      `json:"include_comments,omitempty"`
}

// SummarizeParams are the inputs of summarize_items.
type SummarizeParams struct {
	Items         []json.RawMessage `json:"items" jsonschema:"description=Work items as API payloads or normalized records."`
	Prompt        string            `json:"prompt,omitempty"`
	OriginalQuery string            `json:"original_query,omitempty"`
	Detail        string            `json:"detail,omitempty" jsonschema:"enum=summary,enum=detailed,enum=comprehensive,description=Sizes the answer budget."`
}

// SummarizeCachedParams are the inputs of summarize_cached_items.
type SummarizeCachedParams struct {
	Query  string            `json:"query,omitempty" jsonschema:"description=Analysis instruction."`
	Prompt string            `json:"prompt,omitempty"`
	Items  []json.RawMessage `json:"items,omitempty" jsonschema:"description=Items to analyze instead of the cached query results."`
	Detail string            `json:"detail,omitempty" jsonschema:"enum=summary,enum=detailed,enum=comprehensive,description=Sizes the answer budget."`
}

// ExplainParams are the inputs of explain_field.
type ExplainParams struct {
	Field        string `json:"field"`
	WorkItemType string `json:"work_item_type,omitempty" jsonschema:"description=Lists the usual states of this type when field is System.State."`
}

type handler struct {
	description string
	params      any
	run         func(ctx context.Context, s *Session, args json.RawMessage) (map[string]any, error)
}

var registry = map[string]handler{
	ToolQueryWorkItems: {
		description: "Run a natural-language work item query, enrich the results and optionally analyze them.",
		params:      &QueryParams{},
		run:         runQuery,
	},
	ToolGetWorkItem: {
		description: "Fetch a single work item with comments and history.",
		params:      &GetParams{},
		run:         runGet,
	},
	ToolSummarizeItems: {
		description: "Analyze supplied work items against a prompt.",
		params:      &SummarizeParams{},
		run:         runSummarize,
	},
	ToolSummarizeCachedItems: {
		description: "Analyze the results of the most recent query.",
		params:      &SummarizeCachedParams{},
		run:         runSummarizeCached,
	},
	ToolExplainField: {
		description: "Describe a work item field.",
		params:      &ExplainParams{},
		run:         runExplain,
	},
}

// Names returns the tool names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every tool with the JSON schema of its arguments.
func Definitions() []Definition {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	defs := make([]Definition, 0, len(registry))
	for _, name := range Names() {
		h := registry[name]
		defs = append(defs, Definition{
			Name:        name,
			Description: h.description,
			InputSchema: reflector.Reflect(h.params),
		})
	}
	return defs
}

// Invoke runs a tool by name. Failures are reported in the result map under
// "error" rather than returned, so every call yields a JSON object.
func (s *Session) Invoke(ctx context.Context, name string, params map[string]any) (result map[string]any) {
	h, ok := registry[name]
	if !ok {
		return map[string]any{"error": "unknown_tool"}
	}

	defer func() {
		if r := recover(); r != nil {
			s.log().Error("tool panicked", "tool", name, "panic", r)
			result = map[string]any{"error": fmt.Sprint(r), "error_type": "internal"}
		}
	}()

	if params == nil {
		params = map[string]any{}
	}
	args, err := json.Marshal(params)
	if err != nil {
		return errorResult(witerrors.Wrap(err, "encode tool arguments"))
	}

	out, err := h.run(ctx, s, args)
	if err != nil {
		s.log().Debug("tool failed", "tool", name, "error", err)
		return errorResult(err)
	}
	return out
}

func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error(), "error_type": witerrors.Kind(err)}
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return v, witerrors.Wrap(err, "parse tool arguments")
	}
	return v, nil
}

func runQuery(ctx context.Context, s *Session, args json.RawMessage) (map[string]any, error) {
	p, err := decode[QueryParams](args)
	if err != nil {
		return nil, err
	}
	res, err := s.QueryWorkItems(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":               res.RunID,
		"wiql_query":           res.WIQLQuery,
		"count":                res.Count,
		"items":                res.Items,
		"summary":              res.Summary,
		"individual_summaries": res.IndividualSummaries,
	}, nil
}

func runGet(ctx context.Context, s *Session, args json.RawMessage) (map[string]any, error) {
	p, err := decode[GetParams](args)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetWorkItem(ctx, int(p.ID), boolOr(p.IncludeComments, true))
	if witerrors.Is(err, ErrNotFound) {
		return map[string]any{"error": ErrNotFound.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": rec}, nil
}

func runSummarize(ctx context.Context, s *Session, args json.RawMessage) (map[string]any, error) {
	p, err := decode[SummarizeParams](args)
	if err != nil {
		return nil, err
	}
	items, err := workitem.IngestAll(p.Items)
	if err != nil {
		return nil, err
	}
	prompt := firstNonEmpty(p.Prompt, p.OriginalQuery)

	summary, err := s.SummarizeItems(ctx, items, prompt, p.Detail)
	if err != nil {
		summary = fmt.Sprintf("[Freeform analysis failed: %v]", err)
	}
	return map[string]any{"summary": summary}, nil
}

func runSummarizeCached(ctx context.Context, s *Session, args json.RawMessage) (map[string]any, error) {
	p, err := decode[SummarizeCachedParams](args)
	if err != nil {
		return nil, err
	}
	prompt := firstNonEmpty(p.Query, p.Prompt)

	if len(p.Items) == 0 {
		summary, entry, err := s.SummarizeCached(ctx, prompt, p.Detail)
		switch {
		case witerrors.IsQueryError(err):
			return nil, err
		case err != nil:
			summary = fmt.Sprintf("[Freeform analysis failed: %v]", err)
		}
		count := 0
		if entry != nil {
			count = len(entry.Items)
		}
		return cachedResult(summary, count), nil
	}

	items, err := workitem.IngestAll(p.Items)
	if err != nil {
		return nil, err
	}
	summary, err := s.SummarizeItems(ctx, items, prompt, p.Detail)
	if err != nil {
		summary = fmt.Sprintf("[Freeform analysis failed: %v]", err)
	}
	return cachedResult(summary, len(items)), nil
}

func cachedResult(summary string, count int) map[string]any {
	return map[string]any{
		"summary":              summary,
		"count":                count,
		"individual_summaries": map[int]string{},
	}
}

func runExplain(_ context.Context, s *Session, args json.RawMessage) (map[string]any, error) {
	p, err := decode[ExplainParams](args)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Field) == "" {
		return nil, witerrors.NewQueryError("explain_field", "field is required")
	}
	e := s.ExplainField(p.Field, p.WorkItemType)
	out := map[string]any{
		"field":          e.Field,
		"reference_name": e.ReferenceName,
		"explanation":    e.Explanation,
	}
	if e.Type != "" {
		out["type"] = e.Type
		out["operators"] = e.Operators
	}
	if e.RecordAttribute != "" {
		out["record_attribute"] = e.RecordAttribute
	}
	if len(e.States) > 0 {
		out["states"] = e.States
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
