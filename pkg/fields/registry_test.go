package fields

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"title", "System.Title"},
		{"Title", "System.Title"},
		{"Assigned To", "System.AssignedTo"},
		{"assigned-to", "System.AssignedTo"},
		{"work_item_type", "System.WorkItemType"},
		{"priority", "Microsoft.VSTS.Common.Priority"},
		{"Remaining Work", "Microsoft.VSTS.Scheduling.RemainingWork"},
		// System wins over common for names present in both tables
		{"closeddate", "System.ClosedDate"},
		{"Custom.Team", "Custom.Team"},
		{"Microsoft.VSTS.Common.Priority", "Microsoft.VSTS.Common.Priority"},
		{"Foo", "System.Foo"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Resolve(tt.input); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeWorkItemType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"bug", "Bug"},
		{"BUG", "Bug"},
		{"user story", "User Story"},
		{"user-story", "User Story"},
		{"story", "User Story"},
		{"pbi", "Product Backlog Item"},
		{"Change Request", "Change Request"},
		{"Spike", "Spike"},
	}

	for _, tt := range tests {
		if got := NormalizeWorkItemType(tt.input); got != tt.want {
			t.Errorf("NormalizeWorkItemType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidOperator(t *testing.T) {
	tests := []struct {
		ft   FieldType
		op   string
		want bool
	}{
		{TypeTreePath, "under", true},
		{TypeTreePath, "CONTAINS", false},
		{TypeString, "contains", true},
		{TypeInteger, ">=", true},
		{TypeBoolean, ">", false},
		{TypePlainText, "contains words", true},
		{FieldType("Unknown"), "=", false},
	}

	for _, tt := range tests {
		if got := ValidOperator(tt.ft, tt.op); got != tt.want {
			t.Errorf("ValidOperator(%s, %q) = %v, want %v", tt.ft, tt.op, got, tt.want)
		}
	}
}

func TestExplain(t *testing.T) {
	tests := []struct {
		name, workItemType string
		want               Explanation
	}{
		{
			name: "priority",
			want: Explanation{
				ReferenceName:   Priority,
				Text:            "Numeric priority (1 highest).",
				Known:           true,
				Type:            TypeInteger,
				Operators:       []string{"=", "<>", ">", "<", ">=", "<=", "IN", "NOT IN", "WAS EVER"},
				RecordAttribute: "priority",
			},
		},
		{
			name:         "state",
			workItemType: "bug",
			want: Explanation{
				ReferenceName:   State,
				Text:            "Lifecycle state.",
				Known:           true,
				Type:            TypeString,
				Operators:       []string{"=", "<>", ">", "<", ">=", "<=", "CONTAINS", "NOT CONTAINS", "IN", "NOT IN"},
				RecordAttribute: "state",
				States:          []string{"New", "Active", "Resolved", "Closed"},
			},
		},
		{
			name:         "area path",
			workItemType: "bug",
			want: Explanation{
				ReferenceName:   AreaPath,
				Text:            "Product area the work item belongs to.",
				Known:           true,
				Type:            TypeTreePath,
				Operators:       []string{"=", "<>", "UNDER", "NOT UNDER", "IN", "NOT IN"},
				RecordAttribute: "area_path",
			},
		},
		{
			name: "Custom.Thing",
			want: Explanation{ReferenceName: "Custom.Thing", Text: "Unknown field."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Explain(tt.name, tt.workItemType)); diff != "" {
				t.Errorf("Explain(%q) mismatch (-want +got):\n%s", tt.name, diff)
			}
		})
	}
}

func TestOperatorsReturnsCopy(t *testing.T) {
	ops := Operators(TypeBoolean)
	ops[0] = "LIKE"
	if ValidOperator(TypeBoolean, "LIKE") {
		t.Error("Operators() result aliases the operator table")
	}
}

func TestRecordAttribute(t *testing.T) {
	if attr, ok := RecordAttribute(WorkItemType); !ok || attr != "type" {
		t.Errorf("RecordAttribute(WorkItemType) = %q, %v", attr, ok)
	}
	if _, ok := RecordAttribute("System.Watermark"); ok {
		t.Error("System.Watermark should not be projected")
	}
	if got := CommonStates("bug"); len(got) != 4 || got[0] != "New" {
		t.Errorf("CommonStates(bug) = %v", got)
	}
}
