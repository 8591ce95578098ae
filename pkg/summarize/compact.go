// Package summarize prepares work items for LLM analysis and produces
// freeform and per-item summaries.
package summarize

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"thoreinstein.com/wit/pkg/fields"
	"thoreinstein.com/wit/pkg/workitem"
)

// Compaction limits.
const (
	MaxTitleLen       = 160
	MaxCommentLen     = 300
	MaxRecentComments = 5
	MaxTags           = 3
	DefaultMaxItems   = 250
)

var (
	mentionLinkRe  = regexp.MustCompile(`\[(@[^\]]+)\]\([^)]*\)`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
	tagSeparatorRe = regexp.MustCompile(`\s*;\s*`)
)

// CompactComment is a trimmed discussion entry.
type CompactComment struct {
	Author string `json:"author"`
	Date   string `json:"date,omitempty"`
	Text   string `json:"text"`
}

// CompactItem is the prompt-sized view of a work item.
type CompactItem struct {
	ID                  int              `json:"id"`
	Shape               string           `json:"shape"`
	Title               string           `json:"title"`
	Type                string           `json:"type,omitempty"`
	State               string           `json:"state,omitempty"`
	Assigned            string           `json:"assigned,omitempty"`
	Priority            *int             `json:"priority,omitempty"`
	Tags                []string         `json:"tags"`
	CommentCount        int              `json:"comment_count"`
	PartnerCommentCount int              `json:"partner_comment_count"`
	RecentComments      []CompactComment `json:"recent_comments"`
	CreatedDate         string           `json:"created_date,omitempty"`
	ChangedDate         string           `json:"changed_date,omitempty"`
}

// Cleaner turns comment HTML into short markdown.
type Cleaner struct {
	converter *md.Converter
}

// NewCleaner creates a Cleaner.
func NewCleaner() *Cleaner {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Cleaner{converter: converter}
}

// Clean converts HTML to markdown, flattens @mention links and caps the
// result at limit runes. Text that fails to convert is kept as is.
func (c *Cleaner) Clean(html string, limit int) string {
	text, err := c.converter.ConvertString(html)
	if err != nil {
		text = html
	}
	text = mentionLinkRe.ReplaceAllString(text, "$1")
	text = blankLinesRe.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	return truncate(text, limit)
}

// Compact converts up to max items into their prompt view, dispatching on
// each item's shape. max <= 0 uses DefaultMaxItems.
func (c *Cleaner) Compact(items []workitem.Item, max int) []CompactItem {
	if max <= 0 {
		max = DefaultMaxItems
	}
	if len(items) > max {
		items = items[:max]
	}

	out := make([]CompactItem, 0, len(items))
	for _, it := range items {
		switch it.Shape {
		case workitem.ShapeNormalized:
			if it.Record != nil {
				out = append(out, c.compactRecord(it.Record))
			}
		case workitem.ShapeRaw:
			if it.Raw != nil {
				out = append(out, compactRaw(it.Raw))
			}
		}
	}
	return out
}

// Compact uses a fresh Cleaner.
func Compact(items []workitem.Item, max int) []CompactItem {
	return NewCleaner().Compact(items, max)
}

func (c *Cleaner) compactRecord(r *workitem.Record) CompactItem {
	recent := r.Comments
	if len(recent) > MaxRecentComments {
		recent = recent[len(recent)-MaxRecentComments:]
	}
	comments := make([]CompactComment, 0, len(recent))
	for _, cm := range recent {
		author := cm.CreatedBy.DisplayName
		if author == "" {
			author = "Unknown"
		}
		comments = append(comments, CompactComment{
			Author: author,
			Date:   datePart(cm.CreatedDate),
			Text:   c.Clean(cm.Text, MaxCommentLen),
		})
	}

	tags := r.Tags
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}

	return CompactItem{
		ID:                  r.ID,
		Shape:               workitem.ShapeNormalized.String(),
		Title:               truncate(r.Title, MaxTitleLen),
		Type:                r.Type,
		State:               r.State,
		Assigned:            r.AssignedTo,
		Priority:            r.Priority,
		Tags:                nonNil(tags),
		CommentCount:        r.CommentCount,
		PartnerCommentCount: r.PartnerCommentCount,
		RecentComments:      comments,
		CreatedDate:         r.CreatedDate,
		ChangedDate:         r.ChangedDate,
	}
}

func compactRaw(r *workitem.RawWorkItem) CompactItem {
	item := CompactItem{
		ID:             r.ID,
		Shape:          workitem.ShapeRaw.String(),
		Title:          truncate(r.String(fields.Title), MaxTitleLen),
		Type:           r.String(fields.WorkItemType),
		State:          r.String(fields.State),
		Assigned:       rawIdentity(r.Fields[fields.AssignedTo]),
		Tags:           []string{},
		RecentComments: []CompactComment{},
		CreatedDate:    r.String(fields.CreatedDate),
		ChangedDate:    r.String(fields.ChangedDate),
	}
	if p, ok := r.Int(fields.Priority); ok {
		item.Priority = &p
	}
	if n, ok := r.Int(fields.CommentCount); ok {
		item.CommentCount = n
	}
	if raw := strings.TrimSpace(r.String(fields.Tags)); raw != "" {
		for _, t := range tagSeparatorRe.Split(raw, -1) {
			if t != "" && len(item.Tags) < MaxTags {
				item.Tags = append(item.Tags, t)
			}
		}
	}
	return item
}

func rawIdentity(v any) string {
	switch id := v.(type) {
	case map[string]any:
		if s, ok := id["displayName"].(string); ok && s != "" {
			return s
		}
		if s, ok := id["uniqueName"].(string); ok {
			return s
		}
	case string:
		return id
	}
	return ""
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func datePart(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
