package fields

var explanations = map[string]string{
	ID:            "Unique numeric identifier of the work item.",
	Title:         "Short summary line of the work item.",
	Description:   "Long-form HTML description.",
	State:         "Lifecycle state.",
	WorkItemType:  "Kind of work item (Bug, Task, User Story, ...).",
	AssignedTo:    "Identity currently responsible for the work item.",
	CreatedDate:   "When the work item was created.",
	ChangedDate:   "When the work item was last modified.",
	AreaPath:      "Product area the work item belongs to.",
	IterationPath: "Sprint/backlog path.",
	Tags:          "Semicolon-separated labels.",
	Priority:      "Numeric priority (1 highest).",
	ResolvedDate:  "When the work item entered the Resolved state.",
	ClosedDate:    "When the work item entered the Closed state.",
	ReproSteps:    "HTML steps to reproduce a bug.",
}

// Explanation describes one field.
type Explanation struct {
	ReferenceName   string
	Text            string
	Known           bool
	Type            FieldType // empty when unknown
	Operators       []string
	RecordAttribute string   // empty when records do not carry the field
	States          []string // only for System.State with a known work item type
}

// Explain describes a field given by any name Resolve accepts. For
// System.State, a non-empty workItemType adds its usual states.
func Explain(name, workItemType string) Explanation {
	e := Explanation{ReferenceName: Resolve(name)}

	e.Text, e.Known = explanations[e.ReferenceName]
	if !e.Known {
		e.Text = "Unknown field."
	}
	if ft, ok := TypeOf(e.ReferenceName); ok {
		e.Type = ft
		e.Operators = Operators(ft)
	}
	e.RecordAttribute, _ = RecordAttribute(e.ReferenceName)
	if e.ReferenceName == State && workItemType != "" {
		e.States = CommonStates(workItemType)
	}
	return e
}
