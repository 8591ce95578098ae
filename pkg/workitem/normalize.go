package workitem

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"thoreinstein.com/wit/pkg/fields"
)

// DefaultInternalDomains are the author domains not counted as partners.
var DefaultInternalDomains = []string{"microsoft.com", "contoso.com"}

var tagSplit = regexp.MustCompile(`\s*;\s*`)

// Normalizer flattens raw work items into Records. Comments from authors
// outside InternalDomains are partner comments.
type Normalizer struct {
	InternalDomains []string
}

// NewNormalizer returns a Normalizer for the given internal domains, using
// DefaultInternalDomains when none are given.
func NewNormalizer(domains []string) *Normalizer {
	if len(domains) == 0 {
		domains = DefaultInternalDomains
	}
	return &Normalizer{InternalDomains: domains}
}

// Normalize flattens raw with the default internal domains.
func Normalize(raw RawWorkItem, comments []Comment, updates []Update) Record {
	return NewNormalizer(nil).Normalize(raw, comments, updates)
}

// Normalize builds a Record from a raw item and its comments and updates.
// It never fails; missing fields stay at their zero value.
func (n *Normalizer) Normalize(raw RawWorkItem, comments []Comment, updates []Update) Record {
	rec := Record{
		ID:            raw.ID,
		Title:         raw.String(fields.Title),
		Type:          raw.String(fields.WorkItemType),
		State:         raw.String(fields.State),
		AreaPath:      raw.String(fields.AreaPath),
		IterationPath: raw.String(fields.IterationPath),
		CreatedDate:   raw.String(fields.CreatedDate),
		ChangedDate:   raw.String(fields.ChangedDate),
		ResolvedDate:  raw.String(fields.ResolvedDate),
		ClosedDate:    raw.String(fields.ClosedDate),
		URL:           raw.URL,
	}
	if id, ok := raw.Int(fields.ID); ok && rec.ID == 0 {
		rec.ID = id
	}

	rec.AssignedTo = identityName(raw.Fields[fields.AssignedTo])

	if p, ok := raw.Int(fields.Priority); ok {
		rec.Priority = &p
	}

	if tags := raw.String(fields.Tags); tags != "" {
		rec.Tags = splitTags(tags)
	}

	if steps := raw.String(fields.ReproSteps); steps != "" {
		rec.ReproSteps = StripHTML(steps)
	}

	if comments == nil {
		comments = []Comment{}
	}
	rec.Comments = comments
	rec.PartnerComments = n.partnerComments(comments)
	rec.CommentCount = len(rec.Comments)
	rec.PartnerCommentCount = len(rec.PartnerComments)

	rec.RevisionCount = len(updates)
	rec.StateTransitions = stateTransitions(updates)
	rec.ChangeDates = changeDates(updates, rec.CreatedDate, rec.ChangedDate)
	if len(updates) > 0 {
		rec.LastUpdateAuthor = updates[len(updates)-1].RevisedBy.DisplayName
	}

	return rec
}

// IsPartner reports whether an author's unique name is an email address
// outside the internal domains.
func (n *Normalizer) IsPartner(uniqueName string) bool {
	at := strings.LastIndex(uniqueName, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(uniqueName[at+1:])
	for _, d := range n.InternalDomains {
		if strings.EqualFold(d, domain) {
			return false
		}
	}
	return true
}

func (n *Normalizer) partnerComments(comments []Comment) []Comment {
	out := []Comment{}
	for _, c := range comments {
		if n.IsPartner(c.CreatedBy.UniqueName) {
			out = append(out, c)
		}
	}
	return out
}

func identityName(v any) string {
	switch id := v.(type) {
	case map[string]any:
		if name, _ := id["displayName"].(string); name != "" {
			return name
		}
		name, _ := id["uniqueName"].(string)
		return name
	case string:
		return id
	default:
		return ""
	}
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range tagSplit.Split(strings.TrimSpace(s), -1) {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func stateTransitions(updates []Update) []StateTransition {
	out := []StateTransition{}
	for _, u := range updates {
		change, ok := u.Fields[fields.State]
		if !ok || !change.HasOld || !change.HasNew {
			continue
		}
		out = append(out, StateTransition{
			From: valueString(change.OldValue),
			To:   valueString(change.NewValue),
			Date: u.RevisedDate,
		})
	}
	return out
}

// changeDates lists created, every revision date, then changed unless it
// repeats the last entry. Duplicates are dropped keeping first occurrence.
func changeDates(updates []Update, created, changed string) []string {
	var dates []string
	if created != "" {
		dates = append(dates, created)
	}
	for _, u := range updates {
		if u.RevisedDate != "" {
			dates = append(dates, u.RevisedDate)
		}
	}
	if changed != "" && (len(dates) == 0 || dates[len(dates)-1] != changed) {
		dates = append(dates, changed)
	}

	seen := make(map[string]bool, len(dates))
	out := []string{}
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func valueString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if name := identityName(v); name != "" {
		return name
	}
	return fmt.Sprint(v)
}

// StripHTML returns the text content of an HTML fragment with tags removed.
func StripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
