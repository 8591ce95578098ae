package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"thoreinstein.com/wit/pkg/ai"
	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/wiql"
)

// replyProvider answers each Chat call with the next scripted reply.
type replyProvider struct {
	replies []ai.Response
	errs    []error
	calls   int
	system  string
	last    ai.ChatRequest
}

func (r *replyProvider) IsAvailable() bool { return true }
func (r *replyProvider) Name() string      { return "fake" }

func (r *replyProvider) Chat(ctx context.Context, req ai.ChatRequest) (*ai.Response, error) {
	i := r.calls
	r.calls++
	r.last = req
	if len(req.Messages) > 0 {
		r.system = req.Messages[0].Content
	}
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i >= len(r.replies) {
		i = len(r.replies) - 1
	}
	resp := r.replies[i]
	return &resp, nil
}

type stubParser struct {
	res *Result
	err error
	hit int
}

func (s *stubParser) Parse(ctx context.Context, query string) (*Result, error) {
	s.hit++
	return s.res, s.err
}

func TestChain_FirstSuccessWins(t *testing.T) {
	failing := &stubParser{err: errors.New("model offline")}
	winner := &stubParser{res: &Result{Source: "second"}}
	never := &stubParser{res: &Result{Source: "third"}}

	res, err := NewChain(nil, failing, nil, winner, never).Parse(t.Context(), "active bugs")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Source != "second" {
		t.Errorf("Source = %q, want second", res.Source)
	}
	if never.hit != 0 {
		t.Error("parser after the winner was called")
	}
}

func TestChain_AllFail(t *testing.T) {
	first := errors.New("first cause")
	second := errors.New("second cause")

	_, err := NewChain(nil, &stubParser{err: first}, &stubParser{err: second}).Parse(t.Context(), "x")

	var qErr *witerrors.QueryError
	if !witerrors.As(err, &qErr) || qErr.Op != "parse" {
		t.Fatalf("error = %v, want parse QueryError", err)
	}
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("error %v should carry both causes", err)
	}
}

func TestChain_EmptyQuery(t *testing.T) {
	p := &stubParser{res: &Result{}}
	if _, err := NewChain(nil, p).Parse(t.Context(), "   "); !witerrors.IsQueryError(err) {
		t.Errorf("error = %v, want QueryError", err)
	}
	if p.hit != 0 {
		t.Error("parser called for empty query")
	}
}

func TestResult_Query(t *testing.T) {
	direct := &Result{WIQL: "SELECT [System.Id] FROM WorkItems"}
	if q, err := direct.Query(); err != nil || q != direct.WIQL {
		t.Errorf("Query() = %q, %v", q, err)
	}

	compiled := &Result{Spec: wiql.QuerySpec{IDs: []int{7}}}
	q, err := compiled.Query()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(q, "[System.Id] IN (7)") {
		t.Errorf("Query() = %q", q)
	}
}

func TestAIParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantWIQL string
		wantSpec wiql.QuerySpec
	}{
		{
			name:  "spec answer",
			reply: `{"filters":{"work_item_types":["Bug"],"states_in":["Active"]},"max_items":20}`,
			wantSpec: wiql.QuerySpec{
				Filters:  wiql.Filters{WorkItemTypes: []string{"Bug"}, StatesIn: []string{"Active"}},
				MaxItems: 20,
			},
		},
		{
			name:  "fenced spec answer",
			reply: "```json\n{\"filters\":{\"tags_include\":[\"he_swe_wat\"]},\"date_window\":{\"relative\":\"last_14_days\"}}\n```",
			wantSpec: wiql.QuerySpec{
				Filters:    wiql.Filters{TagsInclude: []string{"he_swe_wat"}},
				DateWindow: &wiql.DateWindow{Relative: "last_14_days"},
			},
		},
		{
			name:     "direct wiql answer",
			reply:    `{"wiql_query":"SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'New'","direct_wiql":true,"max_items":50}`,
			wantWIQL: "SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'New'",
			wantSpec: wiql.QuerySpec{MaxItems: 50},
		},
		{
			name:     "bare select in fence",
			reply:    "Here you go:\n```sql\nSELECT [System.Id] FROM WorkItems\n```",
			wantWIQL: "SELECT [System.Id] FROM WorkItems",
		},
		{
			name:     "analysis flag without prompt uses request",
			reply:    `{"filters":{"work_item_types":["Task"]},"has_analysis_request":true}`,
			wantSpec: wiql.QuerySpec{Filters: wiql.Filters{WorkItemTypes: []string{"Task"}}, AnalysisPrompt: "the request"},
		},
		{
			name:     "analysis prompt kept",
			reply:    `{"filters":{},"has_analysis_request":true,"analysis_prompt":"summarize like a newsletter"}`,
			wantSpec: wiql.QuerySpec{AnalysisPrompt: "summarize like a newsletter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &replyProvider{replies: []ai.Response{{Content: tt.reply}}}

			res, err := NewAIParser(p).Parse(t.Context(), "the request")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if res.Source != SourceAI {
				t.Errorf("Source = %q", res.Source)
			}
			if res.WIQL != tt.wantWIQL {
				t.Errorf("WIQL = %q, want %q", res.WIQL, tt.wantWIQL)
			}
			if diff := cmp.Diff(tt.wantSpec, res.Spec); diff != "" {
				t.Errorf("Spec mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAIParser_SystemPromptCarriesSchema(t *testing.T) {
	p := &replyProvider{replies: []ai.Response{{Content: `{}`}}}
	if _, err := NewAIParser(p).Parse(t.Context(), "anything"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"work_item_types", "date_window", "direct_wiql", "has_analysis_request", "last_14_days", "start_of_month", "@CurrentIteration"} {
		if !strings.Contains(p.system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestAIParser_RequestsStructuredAnswer(t *testing.T) {
	p := &replyProvider{replies: []ai.Response{{Content: `{"filters":{"work_item_types":["Bug"]}}`}}}
	if _, err := NewAIParser(p).Parse(t.Context(), "bugs"); err != nil {
		t.Fatal(err)
	}

	if p.last.Temperature == nil || *p.last.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", p.last.Temperature)
	}
	if p.last.Schema == nil || p.last.Schema.Name != "query_spec" {
		t.Fatalf("Schema = %+v, want query_spec", p.last.Schema)
	}
	props, ok := p.last.Schema.Schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", p.last.Schema.Schema)
	}
	for _, key := range []string{"filters", "wiql_query", "analysis_prompt"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema properties missing %q", key)
		}
	}
	if p.last.MaxTokens != DefaultParserTokens {
		t.Errorf("MaxTokens = %d, want %d", p.last.MaxTokens, DefaultParserTokens)
	}
}

func TestAIParser_RetriesBadAnswers(t *testing.T) {
	p := &replyProvider{replies: []ai.Response{
		{Content: "I am not sure what you mean"},
		{Content: `{"wiql_query":"DELETE FROM WorkItems","direct_wiql":true}`},
		{Content: `{"filters":{"tags_include":["x' OR 1=1 --"]}}`},
	}}

	_, err := NewAIParser(p, WithAttempts(3)).Parse(t.Context(), "q")

	var qErr *witerrors.QueryError
	if !witerrors.As(err, &qErr) || qErr.Op != "parse" {
		t.Fatalf("error = %v, want parse QueryError", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestAIParser_RejectsDangerousDirectWIQL(t *testing.T) {
	replies := []string{
		`{"wiql_query":"SELECT [System.Id] FROM WorkItems; DROP WorkItems","direct_wiql":true}`,
		"SELECT [System.Id] FROM WorkItems -- everything",
	}
	for _, reply := range replies {
		p := &replyProvider{replies: []ai.Response{{Content: reply}}}
		_, err := NewAIParser(p, WithAttempts(1)).Parse(t.Context(), "q")
		if err == nil {
			t.Errorf("Parse(%q) expected error", reply)
		}
	}
}

func TestAIParser_RecoversOnLaterAttempt(t *testing.T) {
	p := &replyProvider{
		errs: []error{witerrors.NewAIErrorWithStatus("fake", "Chat", 503, "busy")},
		replies: []ai.Response{
			{},
			{Content: `{"ids":[5,6]}`},
		},
	}

	res, err := NewAIParser(p).Parse(t.Context(), "q")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff([]int{5, 6}, res.Spec.IDs); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestAIParser_NonRetryableErrorStops(t *testing.T) {
	p := &replyProvider{
		errs:    []error{witerrors.NewAIErrorWithStatus("fake", "Chat", 401, "bad key")},
		replies: []ai.Response{{Content: `{}`}},
	}

	_, err := NewAIParser(p).Parse(t.Context(), "q")
	if !witerrors.IsAIError(err) {
		t.Errorf("error = %v, want AIError", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestAIParser_Unavailable(t *testing.T) {
	if _, err := NewAIParser(nil).Parse(t.Context(), "q"); !witerrors.IsAIError(err) {
		t.Errorf("error = %v, want AIError", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"prefix\n```json\n{\"a\":1}\n```\nsuffix", `{"a":1}`},
		{"  SELECT 1  ", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
