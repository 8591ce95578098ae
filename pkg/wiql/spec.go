// Package wiql compiles structured query specifications into Work Item
// Query Language text.
package wiql

// Result size limits.
const (
	// MaxItemsLimit is the hard ceiling on items returned by one query.
	MaxItemsLimit = 250
	// DefaultMaxItems is used when a spec does not ask for a size.
	DefaultMaxItems = 150
)

// QuerySpec is the structured intent driving a query. When IDs is set every
// other selector is ignored.
type QuerySpec struct {
	IDs           []int       `json:"ids,omitempty" jsonschema:"description=Explicit work item ids. When set all other filters are ignored."`
	Filters       Filters     `json:"filters,omitempty"`
	DateWindow    *DateWindow `json:"date_window,omitempty"`
	FreeTextTerms []string    `json:"free_text_terms,omitempty" jsonschema:"description=Each term must appear in the title or description."`
	Sort          *Sort       `json:"sort,omitempty"`
	MaxItems      int         `json:"max_items,omitempty" jsonschema:"minimum=1,maximum=250"`

	// AnalysisPrompt carries a follow-up analysis request found in the
	// user's wording, if any.
	AnalysisPrompt string `json:"analysis_prompt,omitempty" jsonschema:"description=Analysis or summary instruction contained in the request."`
}

// Filters narrows a query. Every populated selector is ANDed.
type Filters struct {
	WorkItemTypes  []string `json:"work_item_types,omitempty" jsonschema:"description=Work item types such as Bug or User Story."`
	StatesIn       []string `json:"states_in,omitempty"`
	StatesNotIn    []string `json:"states_not_in,omitempty"`
	PriorityMin    *int     `json:"priority_min,omitempty" jsonschema:"minimum=1,maximum=4"`
	PriorityMax    *int     `json:"priority_max,omitempty" jsonschema:"minimum=1,maximum=4"`
	TagsInclude    []string `json:"tags_include,omitempty"`
	AreaPaths      []string `json:"area_paths,omitempty"`
	IterationPaths []string `json:"iteration_paths,omitempty"`
	AssignedTo     string   `json:"assigned_to,omitempty" jsonschema:"description=Display name or email. Use me for the current user."`
}

// DateWindow bounds a date field either relatively or with explicit dates.
type DateWindow struct {
	Field     string `json:"field,omitempty" jsonschema:"description=Date field reference name. Defaults to System.CreatedDate."`
	Relative  string `json:"relative,omitempty" jsonschema:"description=Symbolic period such as today or last_7_days or last_month."`
	StartDate string `json:"start_date,omitempty" jsonschema:"description=ISO-8601 lower bound."`
	EndDate   string `json:"end_date,omitempty" jsonschema:"description=ISO-8601 upper bound."`
}

// Sort orders query results.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty" jsonschema:"enum=ASC,enum=DESC"`
}

// IntPtr returns a pointer to v, for populating priority bounds.
func IntPtr(v int) *int {
	return &v
}

// ClampMaxItems applies the default and the hard ceiling to n.
func ClampMaxItems(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxItems
	case n > MaxItemsLimit:
		return MaxItemsLimit
	default:
		return n
	}
}
