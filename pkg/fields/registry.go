// Package fields maps human field names onto Azure DevOps reference names.
//
// Resolution is deliberately lenient: unknown names are passed through (or
// placed in the System namespace) rather than rejected, so callers can name
// custom fields without registering them first.
package fields

import "strings"

// Reference names used directly by the compiler and normalizer.
const (
	ID            = "System.Id"
	Title         = "System.Title"
	Description   = "System.Description"
	State         = "System.State"
	WorkItemType  = "System.WorkItemType"
	AssignedTo    = "System.AssignedTo"
	CreatedDate   = "System.CreatedDate"
	ChangedDate   = "System.ChangedDate"
	AreaPath      = "System.AreaPath"
	IterationPath = "System.IterationPath"
	TeamProject   = "System.TeamProject"
	Tags          = "System.Tags"
	Rev           = "System.Rev"
	CommentCount  = "System.CommentCount"
	HistoryCount  = "System.HistoryCount"

	Priority     = "Microsoft.VSTS.Common.Priority"
	ResolvedDate = "Microsoft.VSTS.Common.ResolvedDate"
	ClosedDate   = "Microsoft.VSTS.Common.ClosedDate"
	ReproSteps   = "Microsoft.VSTS.TCM.ReproSteps"
)

var systemFields = map[string]string{
	// Core identity
	"id":           ID,
	"title":        Title,
	"description":  Description,
	"state":        State,
	"workitemtype": WorkItemType,
	"assignedto":   AssignedTo,
	"createdby":    "System.CreatedBy",
	"changedby":    "System.ChangedBy",

	// Dates
	"createddate":   CreatedDate,
	"changeddate":   ChangedDate,
	"closeddate":    "System.ClosedDate",
	"resolveddate":  "System.ResolvedDate",
	"activateddate": "System.ActivatedDate",

	// Tree paths
	"areapath":      AreaPath,
	"iterationpath": IterationPath,
	"teamproject":   TeamProject,

	"reason":    "System.Reason",
	"tags":      Tags,
	"history":   "System.History",
	"rev":       Rev,
	"watermark": "System.Watermark",
}

var commonFields = map[string]string{
	"priority":        Priority,
	"severity":        "Microsoft.VSTS.Common.Severity",
	"triage":          "Microsoft.VSTS.Common.Triage",
	"rating":          "Microsoft.VSTS.Common.Rating",
	"valuearea":       "Microsoft.VSTS.Common.ValueArea",
	"risk":            "Microsoft.VSTS.Common.Risk",
	"stackrank":       "Microsoft.VSTS.Common.StackRank",
	"closedby":        "Microsoft.VSTS.Common.ClosedBy",
	"closeddate":      ClosedDate,
	"resolvedby":      "Microsoft.VSTS.Common.ResolvedBy",
	"resolveddate":    ResolvedDate,
	"activatedby":     "Microsoft.VSTS.Common.ActivatedBy",
	"activateddate":   "Microsoft.VSTS.Common.ActivatedDate",
	"statechangedate": "Microsoft.VSTS.Common.StateChangeDate",
}

var schedulingFields = map[string]string{
	"effort":           "Microsoft.VSTS.Scheduling.Effort",
	"originalestimate": "Microsoft.VSTS.Scheduling.OriginalEstimate",
	"remainingwork":    "Microsoft.VSTS.Scheduling.RemainingWork",
	"completedwork":    "Microsoft.VSTS.Scheduling.CompletedWork",
	"activity":         "Microsoft.VSTS.Scheduling.Activity",
	"startdate":        "Microsoft.VSTS.Scheduling.StartDate",
	"finishdate":       "Microsoft.VSTS.Scheduling.FinishDate",
	"targetdate":       "Microsoft.VSTS.Scheduling.TargetDate",
	"duedate":          "Microsoft.VSTS.Scheduling.DueDate",
	"baselinestart":    "Microsoft.VSTS.Scheduling.BaselineStart",
	"baselinefinish":   "Microsoft.VSTS.Scheduling.BaselineFinish",
}

// recordAttributes is the reverse projection used when flattening a raw
// work item into a record.
var recordAttributes = map[string]string{
	ID:            "id",
	Title:         "title",
	WorkItemType:  "type",
	State:         "state",
	AssignedTo:    "assigned_to",
	AreaPath:      "area_path",
	IterationPath: "iteration_path",
	Tags:          "tags",
	Priority:      "priority",
	ReproSteps:    "repro_steps",
	ResolvedDate:  "resolved_date",
	ClosedDate:    "closed_date",
	ChangedDate:   "changed_date",
	CreatedDate:   "created_date",
}

var separatorFold = strings.NewReplacer(" ", "", "-", "", "_", "")

func fold(name string) string {
	return separatorFold.Replace(strings.ToLower(name))
}

// Resolve returns the reference name for a field. Lookup ignores case,
// spaces, hyphens and underscores and checks system, common and scheduling
// fields in that order. Names containing a dot are returned unchanged and
// anything else is placed in the System namespace.
func Resolve(name string) string {
	key := fold(name)

	if ref, ok := systemFields[key]; ok {
		return ref
	}
	if ref, ok := commonFields[key]; ok {
		return ref
	}
	if ref, ok := schedulingFields[key]; ok {
		return ref
	}
	if strings.Contains(name, ".") {
		return name
	}
	return "System." + name
}

// RecordAttribute returns the flattened record attribute for a reference
// name, if the normalizer projects it.
func RecordAttribute(ref string) (string, bool) {
	attr, ok := recordAttributes[ref]
	return attr, ok
}
