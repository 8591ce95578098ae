// Package workitem models Azure DevOps work items as returned by the REST
// API and the flattened records built from them.
package workitem

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Identity is an Azure DevOps identity reference.
type Identity struct {
	DisplayName string `json:"displayName,omitempty"`
	UniqueName  string `json:"uniqueName,omitempty"`
}

// RawWorkItem is a work item as returned by workitemsbatch.
type RawWorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev,omitempty"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url,omitempty"`
}

// Has reports whether ref is present in the field bag.
func (r RawWorkItem) Has(ref string) bool {
	_, ok := r.Fields[ref]
	return ok
}

// String returns a field as a string, or "" when absent or null.
func (r RawWorkItem) String(ref string) string {
	v, ok := r.Fields[ref]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns a numeric field and whether it was present and numeric.
func (r RawWorkItem) Int(ref string) (int, bool) {
	switch v := r.Fields[ref].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Comment is a discussion entry on a work item.
type Comment struct {
	ID          int      `json:"id,omitempty"`
	Text        string   `json:"text"`
	CreatedBy   Identity `json:"createdBy"`
	CreatedDate string   `json:"createdDate,omitempty"`
}

// FieldChange is one field's old and new value within an update. Present
// flags record which keys the server sent, since either may be absent.
type FieldChange struct {
	OldValue any `json:"oldValue,omitempty"`
	NewValue any `json:"newValue,omitempty"`

	HasOld bool `json:"-"`
	HasNew bool `json:"-"`
}

// UnmarshalJSON records key presence alongside the values.
func (c *FieldChange) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if raw, ok := m["oldValue"]; ok {
		c.HasOld = true
		if err := json.Unmarshal(raw, &c.OldValue); err != nil {
			return err
		}
	}
	if raw, ok := m["newValue"]; ok {
		c.HasNew = true
		if err := json.Unmarshal(raw, &c.NewValue); err != nil {
			return err
		}
	}
	return nil
}

// Update is one revision from the work item updates endpoint.
type Update struct {
	ID          int                    `json:"id,omitempty"`
	Rev         int                    `json:"rev,omitempty"`
	RevisedBy   Identity               `json:"revisedBy"`
	RevisedDate string                 `json:"revisedDate,omitempty"`
	Fields      map[string]FieldChange `json:"fields,omitempty"`
}

// StateTransition is a System.State change taken from the update history.
type StateTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date,omitempty"`
}

// Record is the flattened, analysis-ready view of a work item.
type Record struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	State         string   `json:"state"`
	AssignedTo    string   `json:"assigned_to,omitempty"`
	AreaPath      string   `json:"area_path,omitempty"`
	IterationPath string   `json:"iteration_path,omitempty"`
	Priority      *int     `json:"priority,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ReproSteps    string   `json:"repro_steps,omitempty"`

	CreatedDate  string `json:"created_date,omitempty"`
	ChangedDate  string `json:"changed_date,omitempty"`
	ResolvedDate string `json:"resolved_date,omitempty"`
	ClosedDate   string `json:"closed_date,omitempty"`

	RevisionCount    int               `json:"revision_count"`
	StateTransitions []StateTransition `json:"state_transitions"`
	ChangeDates      []string          `json:"change_dates"`
	LastUpdateAuthor string            `json:"last_update_author,omitempty"`

	Comments            []Comment `json:"comments"`
	PartnerComments     []Comment `json:"partner_comments"`
	CommentCount        int       `json:"comment_count"`
	PartnerCommentCount int       `json:"partner_comment_count"`

	URL string `json:"url,omitempty"`
}
