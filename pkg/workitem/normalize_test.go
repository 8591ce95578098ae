package workitem

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rawFixture() RawWorkItem {
	return RawWorkItem{
		ID:  101,
		Rev: 4,
		URL: "https://dev.azure.com/fabrikam/_apis/wit/workItems/101",
		Fields: map[string]any{
			"System.Title":                   "Login fails on Safari",
			"System.WorkItemType":            "Bug",
			"System.State":                   "Active",
			"System.AreaPath":                `Fabrikam\Web`,
			"System.AssignedTo":              map[string]any{"displayName": "Pat Lee", "uniqueName": "pat@microsoft.com"},
			"System.Tags":                    "security ; customer;;  p1 ",
			"Microsoft.VSTS.Common.Priority": float64(1),
			"Microsoft.VSTS.TCM.ReproSteps":  "<div>Open <b>login</b><br/>Click &amp; wait</div>",
			"System.CreatedDate":             "2025-01-01T10:00:00Z",
			"System.ChangedDate":             "2025-01-03T10:00:00Z",
		},
	}
}

func TestNormalize(t *testing.T) {
	comments := []Comment{
		{ID: 1, Text: "internal note", CreatedBy: Identity{UniqueName: "dev@microsoft.com"}},
		{ID: 2, Text: "customer report", CreatedBy: Identity{UniqueName: "ops@partner.io"}},
		{ID: 3, Text: "service account", CreatedBy: Identity{UniqueName: "build-service"}},
		{ID: 4, Text: "contractor", CreatedBy: Identity{UniqueName: "x@Contoso.com"}},
	}
	updates := []Update{
		{Rev: 1, RevisedDate: "2025-01-01T10:00:00Z", RevisedBy: Identity{DisplayName: "Pat Lee"}},
		{Rev: 2, RevisedDate: "2025-01-02T10:00:00Z", RevisedBy: Identity{DisplayName: "Sam Roe"},
			Fields: map[string]FieldChange{"System.State": {OldValue: "New", NewValue: "Active", HasOld: true, HasNew: true}}},
		{Rev: 3, RevisedDate: "2025-01-03T10:00:00Z", RevisedBy: Identity{DisplayName: "Alex Kim"},
			Fields: map[string]FieldChange{"System.State": {NewValue: "Active", HasNew: true}}},
	}

	rec := Normalize(rawFixture(), comments, updates)

	if rec.ID != 101 || rec.Title != "Login fails on Safari" || rec.Type != "Bug" || rec.State != "Active" {
		t.Errorf("identity fields = %+v", rec)
	}
	if rec.AssignedTo != "Pat Lee" {
		t.Errorf("AssignedTo = %q, want display name", rec.AssignedTo)
	}
	if rec.Priority == nil || *rec.Priority != 1 {
		t.Errorf("Priority = %v, want 1", rec.Priority)
	}
	if diff := cmp.Diff([]string{"security", "customer", "p1"}, rec.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if rec.ReproSteps != "Open loginClick & wait" {
		t.Errorf("ReproSteps = %q", rec.ReproSteps)
	}

	if rec.CommentCount != 4 || rec.PartnerCommentCount != 1 {
		t.Errorf("comment counts = %d/%d, want 4/1", rec.CommentCount, rec.PartnerCommentCount)
	}
	if rec.PartnerComments[0].ID != 2 {
		t.Errorf("partner comment = %+v", rec.PartnerComments[0])
	}

	if rec.RevisionCount != 3 {
		t.Errorf("RevisionCount = %d, want 3", rec.RevisionCount)
	}
	wantTransitions := []StateTransition{{From: "New", To: "Active", Date: "2025-01-02T10:00:00Z"}}
	if diff := cmp.Diff(wantTransitions, rec.StateTransitions); diff != "" {
		t.Errorf("StateTransitions mismatch (-want +got):\n%s", diff)
	}
	wantDates := []string{"2025-01-01T10:00:00Z", "2025-01-02T10:00:00Z", "2025-01-03T10:00:00Z"}
	if diff := cmp.Diff(wantDates, rec.ChangeDates); diff != "" {
		t.Errorf("ChangeDates mismatch (-want +got):\n%s", diff)
	}
	if rec.LastUpdateAuthor != "Alex Kim" {
		t.Errorf("LastUpdateAuthor = %q", rec.LastUpdateAuthor)
	}
	if rec.URL != "https://dev.azure.com/fabrikam/_apis/wit/workItems/101" {
		t.Errorf("URL = %q", rec.URL)
	}
}

func TestNormalize_Empty(t *testing.T) {
	rec := Normalize(RawWorkItem{ID: 5, Fields: map[string]any{}}, nil, nil)

	if rec.Comments == nil || rec.PartnerComments == nil || rec.StateTransitions == nil || rec.ChangeDates == nil {
		t.Error("list fields must be empty, not nil")
	}
	if rec.Priority != nil || rec.Tags != nil || rec.AssignedTo != "" {
		t.Errorf("unexpected values: %+v", rec)
	}
	if rec.RevisionCount != 0 || rec.LastUpdateAuthor != "" {
		t.Errorf("history fields = %d, %q", rec.RevisionCount, rec.LastUpdateAuthor)
	}
}

func TestNormalize_AssigneeFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"unique name only", map[string]any{"uniqueName": "pat@fabrikam.com"}, "pat@fabrikam.com"},
		{"plain string", "Pat Lee <pat@fabrikam.com>", "Pat Lee <pat@fabrikam.com>"},
		{"null", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := RawWorkItem{ID: 1, Fields: map[string]any{"System.AssignedTo": tt.value}}
			if got := Normalize(raw, nil, nil).AssignedTo; got != tt.want {
				t.Errorf("AssignedTo = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangeDates(t *testing.T) {
	tests := []struct {
		name    string
		created string
		changed string
		revised []string
		want    []string
	}{
		{
			name:    "changed appended",
			created: "d1", changed: "d4",
			revised: []string{"d2", "d3"},
			want:    []string{"d1", "d2", "d3", "d4"},
		},
		{
			name:    "duplicates removed in place",
			created: "d1", changed: "d1",
			revised: []string{"d1", "d3", "d2", "d3"},
			want:    []string{"d1", "d3", "d2"},
		},
		{
			name:    "never re-sorted",
			created: "2025-02", changed: "2025-01",
			want: []string{"2025-02", "2025-01"},
		},
		{
			name: "nothing known",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var updates []Update
			for _, d := range tt.revised {
				updates = append(updates, Update{RevisedDate: d})
			}
			got := changeDates(updates, tt.created, tt.changed)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("changeDates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsPartner(t *testing.T) {
	n := NewNormalizer([]string{"fabrikam.com"})
	tests := map[string]bool{
		"a@fabrikam.com":  false,
		"a@FABRIKAM.COM":  false,
		"a@microsoft.com": true,
		"no-at-sign":      false,
		"":                false,
	}
	for name, want := range tests {
		if got := n.IsPartner(name); got != want {
			t.Errorf("IsPartner(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestUpdate_DecodesFieldPresence(t *testing.T) {
	data := `{"rev":2,"revisedDate":"2025-01-02","revisedBy":{"displayName":"Sam"},
		"fields":{"System.State":{"oldValue":"New","newValue":"Active"},"System.Reason":{"newValue":"Moved"}}}`

	var u Update
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		t.Fatal(err)
	}
	state := u.Fields["System.State"]
	if !state.HasOld || !state.HasNew || state.OldValue != "New" {
		t.Errorf("state change = %+v", state)
	}
	reason := u.Fields["System.Reason"]
	if reason.HasOld || !reason.HasNew {
		t.Errorf("reason change = %+v", reason)
	}
}

func TestIngest(t *testing.T) {
	raw, err := Ingest([]byte(`{"id":7,"fields":{"System.Title":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if raw.Shape != ShapeRaw || raw.Raw.String("System.Title") != "x" || raw.ID() != 7 {
		t.Errorf("raw item = %+v", raw)
	}

	rec, err := Ingest([]byte(`{"id":8,"title":"y","comments":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Shape != ShapeNormalized || rec.Record.Title != "y" || rec.ID() != 8 {
		t.Errorf("record item = %+v", rec)
	}

	if _, err := Ingest([]byte(`[1,2]`)); err == nil {
		t.Error("Ingest(array) expected error")
	}
}
