package fields

import "strings"

// FieldType is a WIQL field data type.
type FieldType string

// Field types with distinct operator sets.
const (
	TypeString    FieldType = "String"
	TypeInteger   FieldType = "Integer"
	TypeDateTime  FieldType = "DateTime"
	TypeTreePath  FieldType = "TreePath"
	TypeIdentity  FieldType = "Identity"
	TypeBoolean   FieldType = "Boolean"
	TypeDouble    FieldType = "Double"
	TypePlainText FieldType = "PlainText"
)

var typeOperators = map[FieldType][]string{
	TypeString:    {"=", "<>", ">", "<", ">=", "<=", "CONTAINS", "NOT CONTAINS", "IN", "NOT IN"},
	TypeInteger:   {"=", "<>", ">", "<", ">=", "<=", "IN", "NOT IN", "WAS EVER"},
	TypeDateTime:  {"=", "<>", ">", "<", ">=", "<=", "IN", "NOT IN", "WAS EVER"},
	TypeTreePath:  {"=", "<>", "UNDER", "NOT UNDER", "IN", "NOT IN"},
	TypeIdentity:  {"=", "<>", "CONTAINS", "NOT CONTAINS", "IN", "NOT IN", "IN GROUP", "NOT IN GROUP"},
	TypeBoolean:   {"=", "<>"},
	TypeDouble:    {"=", "<>", ">", "<", ">=", "<=", "IN", "NOT IN", "WAS EVER"},
	TypePlainText: {"CONTAINS WORDS", "NOT CONTAINS WORDS", "IS EMPTY", "IS NOT EMPTY"},
}

var fieldTypes = map[string]FieldType{
	ID:            TypeInteger,
	Title:         TypeString,
	Description:   TypePlainText,
	State:         TypeString,
	WorkItemType:  TypeString,
	AssignedTo:    TypeIdentity,
	CreatedDate:   TypeDateTime,
	ChangedDate:   TypeDateTime,
	AreaPath:      TypeTreePath,
	IterationPath: TypeTreePath,
	TeamProject:   TypeString,
	Tags:          TypePlainText,
	Rev:           TypeInteger,
	CommentCount:  TypeInteger,
	Priority:      TypeInteger,
	ResolvedDate:  TypeDateTime,
	ClosedDate:    TypeDateTime,
	ReproSteps:    TypePlainText,
}

// TypeOf returns the data type of a known reference name.
func TypeOf(ref string) (FieldType, bool) {
	ft, ok := fieldTypes[ref]
	return ft, ok
}

// ValidOperator reports whether op may be used with a field of type ft.
// The check is advisory; the compiler does not enforce it.
func ValidOperator(ft FieldType, op string) bool {
	op = strings.ToUpper(strings.TrimSpace(op))
	for _, candidate := range typeOperators[ft] {
		if candidate == op {
			return true
		}
	}
	return false
}

// Operators returns the operators valid for ft.
func Operators(ft FieldType) []string {
	return append([]string(nil), typeOperators[ft]...)
}

var workItemTypes = map[string]string{
	// Agile
	"epic":      "Epic",
	"feature":   "Feature",
	"userstory": "User Story",
	"story":     "User Story",
	"task":      "Task",
	"bug":       "Bug",
	"issue":     "Issue",

	// Scrum
	"productbacklogitem": "Product Backlog Item",
	"pbi":                "Product Backlog Item",

	// CMMI
	"requirement":    "Requirement",
	"changerequest":  "Change Request",
	"review":         "Review",
	"riskassessment": "Risk Assessment",

	// Basic
	"item": "Item",
}

// NormalizeWorkItemType returns the canonical work item type name, or name
// unchanged when it is not a known type.
func NormalizeWorkItemType(name string) string {
	if canonical, ok := workItemTypes[fold(name)]; ok {
		return canonical
	}
	return name
}

var commonStates = map[string][]string{
	"User Story":           {"New", "Active", "Resolved", "Closed", "Removed"},
	"Task":                 {"New", "Active", "Closed", "Removed"},
	"Bug":                  {"New", "Active", "Resolved", "Closed"},
	"Epic":                 {"New", "In Progress", "Done"},
	"Feature":              {"New", "In Progress", "Done"},
	"Product Backlog Item": {"New", "Approved", "Committed", "Done", "Removed"},
	"Issue":                {"Active", "Resolved", "Closed"},
}

// CommonStates returns the usual workflow states for a work item type.
func CommonStates(workItemType string) []string {
	return append([]string(nil), commonStates[NormalizeWorkItemType(workItemType)]...)
}

// Macros lists the WIQL macros the service understands.
var Macros = []string{
	"@Me",
	"@Today",
	"@Project",
	"@CurrentIteration",
	"@StartOfDay",
	"@StartOfWeek",
	"@StartOfMonth",
	"@StartOfYear",
}
