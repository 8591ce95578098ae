package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/fields"
	"thoreinstein.com/wit/pkg/wiql"
)

var (
	hashIDPattern  = regexp.MustCompile(`#(\d+)\b`)
	idListPattern  = regexp.MustCompile(`(?i)\b(?:ids?|items?|work\s+items?)\s+(\d+(?:\s*(?:,|and)\s*\d+)*)\b`)
	idSplitPattern = regexp.MustCompile(`\d+`)

	quotedPattern     = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	assignedMePattern = regexp.MustCompile(`(?i)\b(?:assigned\s+to\s+me|my)\b`)
	assignedToPattern = regexp.MustCompile(`(?i)\bassigned\s+to\s+(\S+@\S+)`)
	priorityPattern   = regexp.MustCompile(`(?i)\b(?:p|priority\s*)([1-4])\b`)
	highPriority      = regexp.MustCompile(`(?i)\bhigh[\s-]+priority\b`)
	tagPattern        = regexp.MustCompile(`(?i)\btag(?:ged)?\s+(?:with\s+)?([\w.\-]+)`)
	areaPattern       = regexp.MustCompile(`(?i)\barea(?:\s+path)?\s+([\w.\-\\/]+)`)
	lastNDaysPattern  = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+)\s+days?\b`)
	topNPattern       = regexp.MustCompile(`(?i)\b(?:top|first|latest)\s+(\d+)\b`)
	analysisPattern   = regexp.MustCompile(`(?i)\b(summari[sz]e|summary|analy[sz]e|analysis|newsletter|insights?)\b`)
)

var typeKeywords = []struct {
	pattern *regexp.Regexp
	name    string
}{
	{regexp.MustCompile(`(?i)\buser\s+stor(?:y|ies)\b|\bstor(?:y|ies)\b`), "User Story"},
	{regexp.MustCompile(`(?i)\bbugs?\b|\bdefects?\b`), "Bug"},
	{regexp.MustCompile(`(?i)\btasks?\b`), "Task"},
	{regexp.MustCompile(`(?i)\bfeatures?\b`), "Feature"},
	{regexp.MustCompile(`(?i)\bepics?\b`), "Epic"},
	{regexp.MustCompile(`(?i)\bissues?\b`), "Issue"},
	{regexp.MustCompile(`(?i)\bpbis?\b|\bproduct\s+backlog\s+items?\b`), "pbi"},
}

var periodKeywords = []struct {
	pattern *regexp.Regexp
	period  string
}{
	{regexp.MustCompile(`(?i)\btoday\b`), "today"},
	{regexp.MustCompile(`(?i)\byesterday\b`), "yesterday"},
	{regexp.MustCompile(`(?i)\b(?:last|past)\s+week\b`), "last_week"},
	{regexp.MustCompile(`(?i)\bthis\s+week\b`), "this_week"},
	{regexp.MustCompile(`(?i)\b(?:last|past)\s+month\b`), "last_month"},
	{regexp.MustCompile(`(?i)\bthis\s+month\b`), "this_month"},
	{regexp.MustCompile(`(?i)\bthis\s+year\b`), "this_year"},
}

var (
	openStates     = regexp.MustCompile(`(?i)\b(?:open|unresolved|outstanding)\b`)
	activeStates   = regexp.MustCompile(`(?i)\bactive\b|\bin\s+progress\b`)
	closedStates   = regexp.MustCompile(`(?i)\bclosed\b|\bdone\b`)
	resolvedStates = regexp.MustCompile(`(?i)\bresolved\b|\bfixed\b`)
	newStates      = regexp.MustCompile(`(?i)\bnew\b`)
)

// HeuristicParser extracts a query spec with keyword rules. It needs no
// external service and only fails on an empty request.
type HeuristicParser struct{}

// NewHeuristicParser returns the rule-based parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// Parse implements Parser.
func (HeuristicParser) Parse(_ context.Context, query string) (*Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, witerrors.NewQueryError("parse", "query is empty")
	}

	if ids := extractIDs(q); len(ids) > 0 {
		return &Result{Spec: wiql.QuerySpec{IDs: ids}, Source: SourceHeuristic}, nil
	}

	spec := wiql.QuerySpec{}
	consumed := map[string]bool{}

	// Analysis wording is split off first so its words do not leak into
	// the filters.
	selector := q
	if loc := analysisPattern.FindStringIndex(q); loc != nil {
		spec.AnalysisPrompt = strings.TrimSpace(q[loc[0]:])
		selector = strings.TrimSpace(q[:loc[0]])
		selector = strings.TrimSuffix(selector, " and then")
		selector = strings.TrimSuffix(selector, " and")
	}

	f := &spec.Filters
	for _, kw := range typeKeywords {
		if kw.pattern.MatchString(selector) {
			f.WorkItemTypes = appendUnique(f.WorkItemTypes, fields.NormalizeWorkItemType(kw.name))
		}
	}

	switch {
	case openStates.MatchString(selector):
		f.StatesNotIn = []string{"Closed", "Resolved", "Removed", "Done"}
	default:
		if activeStates.MatchString(selector) {
			f.StatesIn = append(f.StatesIn, "Active")
		}
		if resolvedStates.MatchString(selector) {
			f.StatesIn = append(f.StatesIn, "Resolved")
		}
		if closedStates.MatchString(selector) {
			f.StatesIn = append(f.StatesIn, "Closed")
		}
		if newStates.MatchString(selector) {
			f.StatesIn = append(f.StatesIn, "New")
		}
	}

	if m := assignedToPattern.FindStringSubmatch(selector); m != nil {
		f.AssignedTo = strings.TrimRight(m[1], ".,;")
	} else if assignedMePattern.MatchString(selector) {
		f.AssignedTo = "@me"
	}

	if m := priorityPattern.FindStringSubmatch(selector); m != nil {
		n, _ := strconv.Atoi(m[1])
		f.PriorityMin = wiql.IntPtr(n)
		f.PriorityMax = wiql.IntPtr(n)
	} else if highPriority.MatchString(selector) {
		f.PriorityMax = wiql.IntPtr(2)
	}

	for _, m := range tagPattern.FindAllStringSubmatch(selector, -1) {
		f.TagsInclude = appendUnique(f.TagsInclude, m[1])
		consumed[m[1]] = true
	}
	for _, m := range areaPattern.FindAllStringSubmatch(selector, -1) {
		f.AreaPaths = appendUnique(f.AreaPaths, m[1])
		consumed[m[1]] = true
	}

	spec.DateWindow = dateWindow(selector)

	if m := topNPattern.FindStringSubmatch(selector); m != nil {
		n, _ := strconv.Atoi(m[1])
		spec.MaxItems = wiql.ClampMaxItems(n)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(selector, -1) {
		term := m[1]
		if term == "" {
			term = m[2]
		}
		term = strings.TrimSpace(term)
		if term == "" || consumed[term] {
			continue
		}
		spec.FreeTextTerms = append(spec.FreeTextTerms, term)
	}

	return &Result{Spec: spec, Source: SourceHeuristic}, nil
}

func extractIDs(q string) []int {
	var ids []int
	seen := map[int]bool{}
	add := func(s string) {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || seen[n] {
			return
		}
		seen[n] = true
		ids = append(ids, n)
	}

	for _, m := range hashIDPattern.FindAllStringSubmatch(q, -1) {
		add(m[1])
	}
	for _, m := range idListPattern.FindAllStringSubmatch(q, -1) {
		for _, d := range idSplitPattern.FindAllString(m[1], -1) {
			add(d)
		}
	}
	return ids
}

// dateWindow maps relative period wording onto a created-date window.
// Periods the compiler has no name for are expanded through DateMacro.
func dateWindow(q string) *wiql.DateWindow {
	if m := lastNDaysPattern.FindStringSubmatch(q); m != nil {
		return &wiql.DateWindow{Relative: "last_" + m[1] + "_days"}
	}
	for _, kw := range periodKeywords {
		if !kw.pattern.MatchString(q) {
			continue
		}
		switch kw.period {
		case "today", "last_week", "last_month":
			return &wiql.DateWindow{Relative: kw.period}
		}
		if macro, ok := wiql.DateMacro(kw.period); ok {
			return &wiql.DateWindow{Relative: macro}
		}
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}
