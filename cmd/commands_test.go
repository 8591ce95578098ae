package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
	"golang.org/x/oauth2"

	"thoreinstein.com/wit/pkg/ado"
	"thoreinstein.com/wit/pkg/ai"
	"thoreinstein.com/wit/pkg/config"
	"thoreinstein.com/wit/pkg/intent"
	"thoreinstein.com/wit/pkg/server"
	"thoreinstein.com/wit/pkg/tools"
	"thoreinstein.com/wit/pkg/workitem"
)

type stubClient struct {
	ids    []int
	items  map[int]workitem.RawWorkItem
	fields []ado.FieldDefinition
}

func (s *stubClient) QueryIDs(_ context.Context, _ string, top int) ([]int, error) {
	if len(s.ids) > top {
		return s.ids[:top], nil
	}
	return s.ids, nil
}

func (s *stubClient) Batch(_ context.Context, ids []int) ([]workitem.RawWorkItem, error) {
	out := []workitem.RawWorkItem{}
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *stubClient) Comments(context.Context, int, int) ([]workitem.Comment, error) {
	return nil, nil
}

func (s *stubClient) CommentsParallel(context.Context, []int, int, int) map[int][]workitem.Comment {
	return map[int][]workitem.Comment{}
}

func (s *stubClient) CommentsConditional(context.Context, []workitem.RawWorkItem, int) map[int][]workitem.Comment {
	return map[int][]workitem.Comment{}
}

func (s *stubClient) Updates(context.Context, int) ([]workitem.Update, error) {
	return nil, nil
}

func (s *stubClient) UpdatesParallel(context.Context, []int, int) map[int][]workitem.Update {
	return map[int][]workitem.Update{}
}

func (s *stubClient) ListFields(context.Context) ([]ado.FieldDefinition, error) {
	return s.fields, nil
}

func (s *stubClient) WorkItemURL(id int) string {
	return "https://dev.azure.com/contoso/Fabrikam/_workitems/edit/" + strconv.Itoa(id)
}

func newStubClient() *stubClient {
	return &stubClient{
		ids: []int{11},
		items: map[int]workitem.RawWorkItem{
			11: {ID: 11, Fields: map[string]any{
				"System.Title":        "Crash on save",
				"System.WorkItemType": "Bug",
				"System.State":        "Active",
				"System.AssignedTo":   map[string]any{"displayName": "Ana"},
			}},
		},
		fields: []ado.FieldDefinition{
			{Name: "State", ReferenceName: "System.State", Type: "string"},
			{Name: "Priority", ReferenceName: "Microsoft.VSTS.Common.Priority", Type: "integer"},
			{Name: "Title", ReferenceName: "System.Title", Type: "string"},
		},
	}
}

type okProvider struct {
	err error
}

func (p *okProvider) Name() string      { return "stub" }
func (p *okProvider) IsAvailable() bool { return true }

func (p *okProvider) Chat(context.Context, ai.ChatRequest) (*ai.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Response{Content: "OK", FinishReason: "stop"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ADO: config.ADOConfig{
			Organization:       "contoso",
			Project:            "Fabrikam",
			APIVersion:         "7.1",
			CommentsAPIVersion: "7.1-preview.4",
			Token:              "pat-secret",
		},
		Auth:  config.AuthConfig{Method: "token"},
		AI:    config.AIConfig{APIKey: "sk-secret"},
		Query: config.QueryConfig{DefaultMaxItems: 150, MaxItems: 250, MaxComments: 50},
		Fetch: config.FetchConfig{
			RequestTimeout:            30 * time.Second,
			CommentWorkers:            5,
			ConditionalCommentWorkers: 20,
			HistoryWorkers:            10,
		},
		Cache: config.CacheConfig{TTL: 30 * time.Minute},
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		flag    string
		tty     bool
		want    string
		wantErr bool
	}{
		{"", true, formatTable, false},
		{"", false, formatJSON, false},
		{"JSON", true, formatJSON, false},
		{" yaml ", false, formatYAML, false},
		{"table", false, formatTable, false},
		{"xml", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.flag+"/"+strconv.FormatBool(tt.tty), func(t *testing.T) {
			got, err := resolveFormat(tt.flag, tt.tty)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRender(t *testing.T) {
	v := tools.FieldExplanation{Field: "priority", ReferenceName: "Microsoft.VSTS.Common.Priority", Explanation: "x"}

	var js bytes.Buffer
	require.NoError(t, render(&js, formatJSON, v, nil))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	require.Equal(t, "priority", decoded["field"])

	var ym bytes.Buffer
	require.NoError(t, render(&ym, formatYAML, v, nil))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	require.Equal(t, decoded, fromYAML)

	var tbl bytes.Buffer
	require.NoError(t, render(&tbl, formatTable, v, nil))
	require.JSONEq(t, js.String(), tbl.String(), "table without a renderer falls back to JSON")
}

func TestTruncateCell(t *testing.T) {
	require.Equal(t, "short", truncateCell("short", 10))
	require.Equal(t, "a b", truncateCell("a\n  b", 10))
	require.Equal(t, "abcdefg...", truncateCell("abcdefghijklmnop", 10))
}

func TestRunCompile(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader(`{"filters":{"work_item_types":["Bug"],"states_in":["Active"],"tags_include":["release-2"]}}`)
	require.NoError(t, runCompile(in, &out))

	got := out.String()
	require.Contains(t, got, "[System.WorkItemType] IN ('Bug')")
	require.Contains(t, got, "[System.State] IN ('Active')")
	require.Contains(t, got, "[System.Tags] CONTAINS 'release-2'")

	out.Reset()
	require.NoError(t, runCompile(strings.NewReader(`{"ids":[3,4]}`), &out))
	require.Contains(t, out.String(), "[System.Id] IN (3,4)")

	err := runCompile(strings.NewReader(`{"filter":{}}`), &out)
	require.ErrorContains(t, err, "failed to parse query specification")
}

func TestRunExplain(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runExplain(&out, tools.NewSession(nil), "priority", "", formatTable))
	require.Equal(t, "priority (Microsoft.VSTS.Common.Priority)\n"+
		"  Numeric priority (1 highest).\n"+
		"  Type:      Integer\n"+
		"  Operators: =, <>, >, <, >=, <=, IN, NOT IN, WAS EVER\n", out.String())

	out.Reset()
	require.NoError(t, runExplain(&out, tools.NewSession(nil), "state", "bug", formatTable))
	require.Contains(t, out.String(), "  States:    New, Active, Resolved, Closed\n")

	out.Reset()
	require.NoError(t, runExplain(&out, tools.NewSession(nil), "Custom.Nope", "", formatJSON))
	require.Contains(t, out.String(), "Unknown field.")
	require.NotContains(t, out.String(), "operators")
}

func TestRunConfigShow(t *testing.T) {
	cfg := testConfig()

	var out bytes.Buffer
	require.NoError(t, runConfigShow(&out, cfg, "/home/u/.config/wit/config.toml"))

	got := out.String()
	require.True(t, strings.HasPrefix(got, "# source: /home/u/.config/wit/config.toml\n"))
	require.Contains(t, got, "[ado]")
	require.Contains(t, got, "contoso")
	require.NotContains(t, got, "pat-secret")
	require.NotContains(t, got, "sk-secret")
	require.Equal(t, 2, strings.Count(got, redacted))

	require.Equal(t, "pat-secret", cfg.ADO.Token, "original config must not be modified")
}

func TestRunFields(t *testing.T) {
	client := newStubClient()

	var out bytes.Buffer
	require.NoError(t, runFields(t.Context(), &out, client, "", formatJSON))
	var defs []ado.FieldDefinition
	require.NoError(t, json.Unmarshal(out.Bytes(), &defs))
	require.Len(t, defs, 3)
	require.Equal(t, "Microsoft.VSTS.Common.Priority", defs[0].ReferenceName)
	require.Equal(t, "System.Title", defs[2].ReferenceName)

	out.Reset()
	require.NoError(t, runFields(t.Context(), &out, client, "STATE", formatTable))
	require.Contains(t, out.String(), "System.State")
	require.NotContains(t, out.String(), "System.Title")
	require.Contains(t, out.String(), "Total: 1 field(s)")
}

func TestRunParse(t *testing.T) {
	parser := intent.NewChain(nil, intent.NewHeuristicParser())

	var out bytes.Buffer
	err := runParse(t.Context(), &out, parser, "list bugs tagged he_swe_wat for past 14 days and then summarize the comments like newsletter")
	require.NoError(t, err)

	got := out.String()
	require.Contains(t, got, "[System.WorkItemType] IN ('Bug')")
	require.Contains(t, got, "[System.Tags] CONTAINS 'he_swe_wat'")
	require.Contains(t, got, "-- analysis: summarize the comments like newsletter")
}

func TestRunQuery(t *testing.T) {
	client := newStubClient()
	session := tools.NewSession(client)
	opts := QueryOptions{NoAI: true}

	var out bytes.Buffer
	require.NoError(t, runQuery(t.Context(), &out, session, client.WorkItemURL, "active bugs", opts, formatJSON))

	var res tools.QueryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, 1, res.Count)
	require.Equal(t, "Crash on save", res.Items[0].Title)
	require.Contains(t, res.WIQLQuery, "[System.State] IN ('Active')")

	out.Reset()
	opts.ShowQuery = true
	require.NoError(t, runQuery(t.Context(), &out, session, client.WorkItemURL, "active bugs", opts, formatTable))
	got := out.String()
	require.Contains(t, got, "FROM WorkItems")
	require.Contains(t, got, "Crash on save")
	require.Contains(t, got, "Ana")
	require.Contains(t, got, "Total: 1 work item(s)")
}

func TestRunQuery_NoResults(t *testing.T) {
	client := newStubClient()
	client.ids = nil

	var out bytes.Buffer
	err := runQuery(t.Context(), &out, tools.NewSession(client), nil, "closed features", QueryOptions{NoAI: true}, formatTable)
	require.NoError(t, err)
	require.Equal(t, "No work items found for query: closed features\n", out.String())
}

func TestRunGet(t *testing.T) {
	client := newStubClient()
	session := tools.NewSession(client)

	var out bytes.Buffer
	require.NoError(t, runGet(t.Context(), &out, session, client.WorkItemURL, 11, true, formatTable))
	got := out.String()
	require.True(t, strings.HasPrefix(got, "#11 Crash on save\n"))
	require.Contains(t, got, "State:     Active")
	require.Contains(t, got, "_workitems/edit/11")

	err := runGet(t.Context(), &out, session, nil, 99, false, formatJSON)
	require.ErrorIs(t, err, tools.ErrNotFound)
}

func TestRunServe(t *testing.T) {
	srv := server.New(tools.NewSession(newStubClient()), server.Target{Organization: "contoso"}, nil)

	in := strings.NewReader(`{"id":1,"method":"invoke_tool","params":{"name":"get_work_item","arguments":{"id":"11"}}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, runServe(t.Context(), srv, in, &out))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	item := resp["result"].(map[string]any)["item"].(map[string]any)
	require.Equal(t, "Crash on save", item["title"])
}

func TestRunDoctor(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "pat"})

	t.Run("all good", func(t *testing.T) {
		checks := runDoctor(t.Context(), testConfig(), tokens, &okProvider{})
		require.Len(t, checks, 3)
		for _, c := range checks {
			require.True(t, c.OK, "%s: %s", c.Name, c.Detail)
		}
		require.Equal(t, "static token", checks[1].Detail)
		require.Equal(t, "stub responded", checks[2].Detail)
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.ADO.Organization = ""

		checks := runDoctor(t.Context(), cfg, nil, nil)
		require.Len(t, checks, 3)
		for _, c := range checks {
			require.False(t, c.OK, c.Name)
		}
		require.Equal(t, []string{"config", "token", "ai"}, []string{checks[0].Name, checks[1].Name, checks[2].Name})
	})

	t.Run("provider error", func(t *testing.T) {
		checks := runDoctor(t.Context(), testConfig(), tokens, &okProvider{err: context.DeadlineExceeded})
		require.False(t, checks[2].OK)
	})

	var out bytes.Buffer
	displayChecks(&out, []Check{{Name: "config", OK: true, Detail: "contoso/Fabrikam"}, {Name: "ai", Detail: "none"}})
	require.Equal(t, "ok    config  contoso/Fabrikam\nFAIL  ai      none\n", out.String())
}
