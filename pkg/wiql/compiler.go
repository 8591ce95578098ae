package wiql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/fields"
)

const (
	idProjection   = "SELECT [System.Id], [System.Title], [System.State], [System.WorkItemType], [System.AssignedTo], [System.ChangedDate]"
	listProjection = "SELECT [System.Id], [System.Title], [System.State], [System.WorkItemType], [System.AssignedTo], [System.CreatedDate], [Microsoft.VSTS.Common.Priority]"

	projectScope   = "[System.TeamProject] = @Project"
	nonEmptyType   = "[System.WorkItemType] <> ''"
	defaultOrderBy = "ORDER BY [System.CreatedDate] DESC"
)

var (
	lastNDays      = regexp.MustCompile(`^last_(\d+)_days$`)
	macroExpr      = regexp.MustCompile(`^@(Today|StartOf(Day|Week|Month|Year))(\s*[-+]\s*\d+)?$`)
	fieldReference = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)
)

var currentUser = map[string]bool{
	"me":           true,
	"@me":          true,
	"current user": true,
}

// Compile turns spec into executable WIQL. Any literal rejected by Sanitize
// aborts compilation; no partial query is returned.
func Compile(spec QuerySpec) (string, error) {
	if len(spec.IDs) > 0 {
		return compileIDs(spec.IDs), nil
	}

	where, err := whereClauses(spec)
	if err != nil {
		return "", err
	}

	orderBy, err := orderClause(spec.Sort)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s\nFROM WorkItems\nWHERE %s\n%s", listProjection, strings.Join(where, " AND "), orderBy), nil
}

func compileIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("%s\nFROM WorkItems\nWHERE [System.Id] IN (%s)\nORDER BY [System.ChangedDate] DESC",
		idProjection, strings.Join(parts, ","))
}

func whereClauses(spec QuerySpec) ([]string, error) {
	f := spec.Filters
	clauses := []string{projectScope}

	if len(f.WorkItemTypes) > 0 {
		types := make([]string, len(f.WorkItemTypes))
		for i, t := range f.WorkItemTypes {
			types[i] = fields.NormalizeWorkItemType(t)
		}
		list, err := quoteList(types)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("[%s] IN (%s)", fields.WorkItemType, list))
	} else {
		clauses = append(clauses, nonEmptyType)
	}

	if len(f.StatesIn) > 0 {
		list, err := quoteList(f.StatesIn)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("[%s] IN (%s)", fields.State, list))
	}

	if len(f.StatesNotIn) > 0 {
		list, err := quoteList(f.StatesNotIn)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("[%s] NOT IN (%s)", fields.State, list))
	}

	if f.PriorityMax != nil {
		clauses = append(clauses, fmt.Sprintf("[%s] <= %d", fields.Priority, *f.PriorityMax))
	}
	if f.PriorityMin != nil {
		clauses = append(clauses, fmt.Sprintf("[%s] >= %d", fields.Priority, *f.PriorityMin))
	}

	literalClauses := []struct {
		field  string
		op     string
		values []string
	}{
		{fields.Tags, "CONTAINS", f.TagsInclude},
		{fields.AreaPath, "UNDER", f.AreaPaths},
		{fields.IterationPath, "UNDER", f.IterationPaths},
	}
	for _, lc := range literalClauses {
		for _, v := range lc.values {
			s, err := Sanitize(v)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, fmt.Sprintf("[%s] %s '%s'", lc.field, lc.op, s))
		}
	}

	if f.AssignedTo != "" {
		if currentUser[strings.ToLower(strings.TrimSpace(f.AssignedTo))] {
			clauses = append(clauses, fmt.Sprintf("[%s] = @Me", fields.AssignedTo))
		} else {
			s, err := Sanitize(f.AssignedTo)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, fmt.Sprintf("[%s] = '%s'", fields.AssignedTo, s))
		}
	}

	if spec.DateWindow != nil {
		dateClauses, err := dateWindowClauses(*spec.DateWindow)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, dateClauses...)
	}

	if len(spec.FreeTextTerms) > 0 {
		text, err := freeTextClause(spec.FreeTextTerms)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, text)
	}

	return clauses, nil
}

func dateWindowClauses(dw DateWindow) ([]string, error) {
	field := fields.CreatedDate
	if dw.Field != "" {
		var err error
		if field, err = fieldName(dw.Field); err != nil {
			return nil, err
		}
	}
	bracketed := "[" + field + "]"

	if dw.Relative != "" {
		bound, ok := relativeBound(dw.Relative)
		if !ok {
			// Unrecognized periods add no clause rather than a guessed window.
			return nil, nil
		}
		return []string{bracketed + " >= " + bound}, nil
	}

	var clauses []string
	if dw.StartDate != "" {
		s, err := Sanitize(datePortion(dw.StartDate))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s >= '%s'", bracketed, s))
	}
	if dw.EndDate != "" {
		s, err := Sanitize(datePortion(dw.EndDate))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s <= '%s'", bracketed, s))
	}
	return clauses, nil
}

// relativeBound maps a relative period onto the lower bound used by the
// compiler. It recognizes last_<N>_days, last_week, last_2_weeks,
// last_month, last_30_days, today and already-resolved macro expressions.
func relativeBound(rel string) (string, bool) {
	rel = strings.TrimSpace(rel)

	if m := lastNDays.FindStringSubmatch(rel); m != nil {
		return "@Today - " + m[1], true
	}

	switch rel {
	case "last_week":
		return "@Today - 7", true
	case "last_2_weeks":
		return "@Today - 14", true
	case "last_month", "last_30_days":
		return "@Today - 30", true
	case "today":
		return "@Today", true
	}

	if macroExpr.MatchString(rel) {
		return rel, true
	}
	return "", false
}

func datePortion(date string) string {
	date = strings.TrimSpace(date)
	if i := strings.IndexByte(date, 'T'); i >= 0 {
		return date[:i]
	}
	return date
}

func freeTextClause(terms []string) (string, error) {
	groups := make([]string, 0, len(terms))
	for _, term := range terms {
		s, err := Sanitize(term)
		if err != nil {
			return "", err
		}
		groups = append(groups, fmt.Sprintf("([%s] CONTAINS '%s' OR [%s] CONTAINS '%s')",
			fields.Title, s, fields.Description, s))
	}
	if len(groups) == 1 {
		return groups[0], nil
	}
	return "(" + strings.Join(groups, " AND ") + ")", nil
}

func orderClause(sort *Sort) (string, error) {
	if sort == nil || sort.Field == "" {
		return defaultOrderBy, nil
	}

	field, err := fieldName(sort.Field)
	if err != nil {
		return "", err
	}

	direction := strings.ToUpper(strings.TrimSpace(sort.Direction))
	switch direction {
	case "":
		direction = "DESC"
	case "ASC", "DESC":
	default:
		return "", witerrors.NewQueryError("compile", fmt.Sprintf("invalid sort direction %q", sort.Direction))
	}

	return fmt.Sprintf("ORDER BY [%s] %s", field, direction), nil
}

// fieldName resolves name through the field registry and rejects anything
// that is not a plain dotted reference name.
func fieldName(name string) (string, error) {
	ref := fields.Resolve(strings.Trim(strings.TrimSpace(name), "[]"))
	if !fieldReference.MatchString(ref) {
		return "", witerrors.NewQueryError("compile", fmt.Sprintf("invalid field name %q", name))
	}
	return ref, nil
}
