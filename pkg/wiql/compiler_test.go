package wiql

import (
	"strings"
	"testing"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

func TestCompile_EmptySpec(t *testing.T) {
	got, err := Compile(QuerySpec{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := "SELECT [System.Id], [System.Title], [System.State], [System.WorkItemType], [System.AssignedTo], [System.CreatedDate], [Microsoft.VSTS.Common.Priority]\n" +
		"FROM WorkItems\n" +
		"WHERE [System.TeamProject] = @Project AND [System.WorkItemType] <> ''\n" +
		"ORDER BY [System.CreatedDate] DESC"
	if got != want {
		t.Errorf("Compile() =\n%s\nwant\n%s", got, want)
	}
}

func TestCompile_IDsIgnoreEverythingElse(t *testing.T) {
	spec := QuerySpec{
		IDs: []int{12, 7, 99},
		Filters: Filters{
			WorkItemTypes: []string{"Bug"},
			AssignedTo:    "me",
		},
		DateWindow:    &DateWindow{Relative: "today"},
		FreeTextTerms: []string{"crash"},
		Sort:          &Sort{Field: "Title", Direction: "ASC"},
	}

	got, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := "SELECT [System.Id], [System.Title], [System.State], [System.WorkItemType], [System.AssignedTo], [System.ChangedDate]\n" +
		"FROM WorkItems\n" +
		"WHERE [System.Id] IN (12,7,99)\n" +
		"ORDER BY [System.ChangedDate] DESC"
	if got != want {
		t.Errorf("Compile() =\n%s\nwant\n%s", got, want)
	}
}

func TestCompile_BugsActiveLastWeek(t *testing.T) {
	spec := QuerySpec{
		Filters: Filters{
			WorkItemTypes: []string{"Bug"},
			StatesIn:      []string{"Active"},
		},
		DateWindow: &DateWindow{Relative: "last_7_days"},
	}

	got, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	wantWhere := "WHERE [System.TeamProject] = @Project AND [System.WorkItemType] IN ('Bug') AND [System.State] IN ('Active') AND [System.CreatedDate] >= @Today - 7\n"
	if !strings.Contains(got, wantWhere) {
		t.Errorf("Compile() = %q, missing %q", got, wantWhere)
	}
	if !strings.HasSuffix(got, "ORDER BY [System.CreatedDate] DESC") {
		t.Errorf("Compile() = %q, want ORDER BY terminator", got)
	}
	if strings.Contains(got, "<> ''") {
		t.Error("type guard must not appear alongside a type list")
	}
}

func TestCompile_Clauses(t *testing.T) {
	tests := []struct {
		name     string
		spec     QuerySpec
		contains []string
		absent   []string
	}{
		{
			name: "states in and not in",
			spec: QuerySpec{Filters: Filters{StatesIn: []string{"Active", "New"}, StatesNotIn: []string{"Removed"}}},
			contains: []string{
				"[System.State] IN ('Active','New')",
				"[System.State] NOT IN ('Removed')",
			},
		},
		{
			name: "priority bounds",
			spec: QuerySpec{Filters: Filters{PriorityMin: IntPtr(1), PriorityMax: IntPtr(2)}},
			contains: []string{
				"[Microsoft.VSTS.Common.Priority] <= 2",
				"[Microsoft.VSTS.Common.Priority] >= 1",
			},
		},
		{
			name: "each tag separately",
			spec: QuerySpec{Filters: Filters{TagsInclude: []string{"security", "customer"}}},
			contains: []string{
				"[System.Tags] CONTAINS 'security' AND [System.Tags] CONTAINS 'customer'",
			},
			absent: []string{"[System.Tags] IN"},
		},
		{
			name: "paths under",
			spec: QuerySpec{Filters: Filters{AreaPaths: []string{`Fabrikam\Web`}, IterationPaths: []string{`Fabrikam\Sprint 5`}}},
			contains: []string{
				`[System.AreaPath] UNDER 'Fabrikam\Web'`,
				`[System.IterationPath] UNDER 'Fabrikam\Sprint 5'`,
			},
		},
		{
			name:     "assigned to me",
			spec:     QuerySpec{Filters: Filters{AssignedTo: "Current User"}},
			contains: []string{"[System.AssignedTo] = @Me"},
		},
		{
			name:     "assigned to person",
			spec:     QuerySpec{Filters: Filters{AssignedTo: "Pat O'Neil"}},
			contains: []string{"[System.AssignedTo] = 'Pat O''Neil'"},
		},
		{
			name:     "type normalized",
			spec:     QuerySpec{Filters: Filters{WorkItemTypes: []string{"user story", "bug"}}},
			contains: []string{"[System.WorkItemType] IN ('User Story','Bug')"},
		},
		{
			name:     "relative on custom field",
			spec:     QuerySpec{DateWindow: &DateWindow{Field: "changed date", Relative: "last_2_weeks"}},
			contains: []string{"[System.ChangedDate] >= @Today - 14"},
		},
		{
			name:     "last month is thirty days",
			spec:     QuerySpec{DateWindow: &DateWindow{Relative: "last_month"}},
			contains: []string{"[System.CreatedDate] >= @Today - 30"},
		},
		{
			name:     "today",
			spec:     QuerySpec{DateWindow: &DateWindow{Relative: "today"}},
			contains: []string{"[System.CreatedDate] >= @Today\n"},
		},
		{
			name:     "resolved macro expression",
			spec:     QuerySpec{DateWindow: &DateWindow{Relative: "@StartOfMonth - 1"}},
			contains: []string{"[System.CreatedDate] >= @StartOfMonth - 1"},
		},
		{
			name:   "unrecognized relative adds nothing",
			spec:   QuerySpec{DateWindow: &DateWindow{Relative: "sometime_soon"}},
			absent: []string{"[System.CreatedDate] >="},
		},
		{
			name: "explicit dates truncated",
			spec: QuerySpec{DateWindow: &DateWindow{StartDate: "2025-01-01T08:00:00Z", EndDate: "2025-01-31"}},
			contains: []string{
				"[System.CreatedDate] >= '2025-01-01'",
				"[System.CreatedDate] <= '2025-01-31'",
			},
		},
		{
			name:     "single free text term",
			spec:     QuerySpec{FreeTextTerms: []string{"login"}},
			contains: []string{"([System.Title] CONTAINS 'login' OR [System.Description] CONTAINS 'login')"},
		},
		{
			name: "every free text term required",
			spec: QuerySpec{FreeTextTerms: []string{"login", "timeout"}},
			contains: []string{
				"(([System.Title] CONTAINS 'login' OR [System.Description] CONTAINS 'login') AND ([System.Title] CONTAINS 'timeout' OR [System.Description] CONTAINS 'timeout'))",
			},
		},
		{
			name:     "custom sort",
			spec:     QuerySpec{Sort: &Sort{Field: "priority", Direction: "asc"}},
			contains: []string{"ORDER BY [Microsoft.VSTS.Common.Priority] ASC"},
			absent:   []string{"ORDER BY [System.CreatedDate]"},
		},
		{
			name:     "sort direction defaults to desc",
			spec:     QuerySpec{Sort: &Sort{Field: "System.ChangedDate"}},
			contains: []string{"ORDER BY [System.ChangedDate] DESC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.spec)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Compile() = %q\nmissing %q", got, want)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(got, unwanted) {
					t.Errorf("Compile() = %q\nshould not contain %q", got, unwanted)
				}
			}
		})
	}
}

func TestCompile_RejectsUnsafeLiterals(t *testing.T) {
	tests := []struct {
		name string
		spec QuerySpec
	}{
		{"tag", QuerySpec{Filters: Filters{TagsInclude: []string{"x'; DROP TABLE"}}}},
		{"state", QuerySpec{Filters: Filters{StatesIn: []string{"Active", "<script>"}}}},
		{"free text", QuerySpec{FreeTextTerms: []string{"ok", "a -- b"}}},
		{"assignee", QuerySpec{Filters: Filters{AssignedTo: "exec xp_cmdshell"}}},
		{"start date", QuerySpec{DateWindow: &DateWindow{StartDate: "2025-01-01; delete "}}},
		{"macro injection", QuerySpec{DateWindow: &DateWindow{Relative: "@Today; DROP "}}},
		{"sort field", QuerySpec{Sort: &Sort{Field: "System.Title] DESC; x"}}},
		{"sort direction", QuerySpec{Sort: &Sort{Field: "Title", Direction: "SIDEWAYS"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.spec)
			if tt.name == "macro injection" {
				// Not a macro expression, so no clause is emitted at all.
				if err != nil || strings.Contains(got, "DROP") {
					t.Fatalf("Compile() = %q, %v", got, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Compile() = %q, want error", got)
			}
			if got != "" {
				t.Errorf("Compile() returned partial query %q", got)
			}
			if !witerrors.IsQueryError(err) {
				t.Errorf("error = %T, want *QueryError", err)
			}
		})
	}
}

func TestClampMaxItems(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultMaxItems},
		{-5, DefaultMaxItems},
		{10, 10},
		{250, 250},
		{1000, MaxItemsLimit},
	}
	for _, tt := range tests {
		if got := ClampMaxItems(tt.in); got != tt.want {
			t.Errorf("ClampMaxItems(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
