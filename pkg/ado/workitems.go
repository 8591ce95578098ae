package ado

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/workitem"
)

// FieldDefinition is one entry from the project fields listing.
type FieldDefinition struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type"`
	ReadOnly      bool   `json:"readOnly,omitempty"`
	Description   string `json:"description,omitempty"`
}

// QueryIDs runs a WIQL query and returns at most top matching ids in server
// order. A bare WHERE fragment is wrapped in a project-scoped SELECT.
func (c *APIClient) QueryIDs(ctx context.Context, query string, top int) ([]int, error) {
	if strings.TrimSpace(query) == "" {
		return nil, witerrors.NewQueryError("query", "empty WIQL query")
	}

	limit := top
	if limit <= 0 || limit > MaxWIQLTop {
		limit = MaxWIQLTop
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(limit))
	params.Set("api-version", c.apiVersion)

	var resp struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	err := c.do(ctx, request{
		op:     "QueryIDs",
		method: http.MethodPost,
		url:    c.projectURL("/_apis/wit/wiql", params),
		body:   map[string]string{"query": fullQuery(query)},
	}, &resp)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(resp.WorkItems))
	for _, wi := range resp.WorkItems {
		ids = append(ids, wi.ID)
	}
	if top > 0 && len(ids) > top {
		ids = ids[:top]
	}

	c.logDebug("wiql query complete", "ids", len(ids))
	return ids, nil
}

func fullQuery(query string) string {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return query
	}
	return "SELECT [System.Id]\nFROM WorkItems\nWHERE [System.TeamProject] = @Project AND " +
		query + "\nORDER BY [System.ChangedDate] DESC"
}

// Batch fetches full work items for ids, in chunks the API accepts, and
// returns them in the order of ids. Ids the server does not return are
// omitted.
func (c *APIClient) Batch(ctx context.Context, ids []int) ([]workitem.RawWorkItem, error) {
	if len(ids) == 0 {
		return []workitem.RawWorkItem{}, nil
	}

	params := url.Values{}
	params.Set("api-version", c.apiVersion)
	endpoint := c.orgURL("/_apis/wit/workitemsbatch", params)

	byID := make(map[int]workitem.RawWorkItem, len(ids))
	for start := 0; start < len(ids); start += BatchSize {
		end := min(start+BatchSize, len(ids))

		var resp struct {
			Value []workitem.RawWorkItem `json:"value"`
		}
		err := c.do(ctx, request{
			op:     "Batch",
			method: http.MethodPost,
			url:    endpoint,
			body: map[string]any{
				"ids":     ids[start:end],
				"$expand": "All",
			},
		}, &resp)
		if err != nil {
			return nil, err
		}

		for _, raw := range resp.Value {
			byID[raw.ID] = raw
		}
	}

	out := make([]workitem.RawWorkItem, 0, len(byID))
	for _, id := range ids {
		if raw, ok := byID[id]; ok {
			out = append(out, raw)
			delete(byID, id)
		}
	}
	return out, nil
}

// ListFields returns the fields visible in the project.
func (c *APIClient) ListFields(ctx context.Context) ([]FieldDefinition, error) {
	params := url.Values{}
	params.Set("api-version", c.apiVersion)

	var resp struct {
		Count int               `json:"count"`
		Value []FieldDefinition `json:"value"`
	}
	err := c.do(ctx, request{
		op:     "ListFields",
		method: http.MethodGet,
		url:    c.projectURL("/_apis/wit/fields", params),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}
