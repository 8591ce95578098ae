package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/fields"
	"thoreinstein.com/wit/pkg/workitem"
)

// Comments returns up to top comments for a work item; top <= 0 means the
// server default. A missing work item yields an empty list.
func (c *APIClient) Comments(ctx context.Context, id, top int) ([]workitem.Comment, error) {
	params := url.Values{}
	params.Set("api-version", c.commentsAPIVersion)
	if top > 0 {
		params.Set("$top", strconv.Itoa(top))
	}

	var resp struct {
		TotalCount int                `json:"totalCount"`
		Comments   []workitem.Comment `json:"comments"`
	}
	err := c.do(ctx, request{
		op:         "Comments",
		workItemID: id,
		method:     http.MethodGet,
		url:        c.projectURL(fmt.Sprintf("/_apis/wit/workItems/%d/comments", id), params),
	}, &resp)
	if err != nil {
		if isNotFound(err) {
			return []workitem.Comment{}, nil
		}
		return nil, err
	}

	if resp.Comments == nil {
		resp.Comments = []workitem.Comment{}
	}
	return resp.Comments, nil
}

// Updates returns the revision history of a work item.
func (c *APIClient) Updates(ctx context.Context, id int) ([]workitem.Update, error) {
	params := url.Values{}
	params.Set("api-version", c.apiVersion)

	var resp struct {
		Value []workitem.Update `json:"value"`
	}
	err := c.do(ctx, request{
		op:         "Updates",
		workItemID: id,
		method:     http.MethodGet,
		url:        c.orgURL(fmt.Sprintf("/_apis/wit/workItems/%d/updates", id), params),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Value == nil {
		resp.Value = []workitem.Update{}
	}
	return resp.Value, nil
}

// CommentsParallel fetches comments for every id with at most workers
// requests in flight. A failed item maps to an empty list.
func (c *APIClient) CommentsParallel(ctx context.Context, ids []int, workers, top int) map[int][]workitem.Comment {
	return fanOut(ctx, ids, positiveOr(workers, c.commentWorkers), func(ctx context.Context, id int) ([]workitem.Comment, error) {
		return c.Comments(ctx, id, top)
	}, c.failureLogger("comments"))
}

// CommentsConditional fetches comments only for items predicted to have
// some; every other item maps to an empty list without a request.
func (c *APIClient) CommentsConditional(ctx context.Context, items []workitem.RawWorkItem, top int) map[int][]workitem.Comment {
	results := make(map[int][]workitem.Comment, len(items))
	var fetch []int
	for _, raw := range items {
		if ShouldFetchComments(raw) {
			fetch = append(fetch, raw.ID)
		} else {
			results[raw.ID] = []workitem.Comment{}
		}
	}

	c.logDebug("conditional comment fetch", "fetch", len(fetch), "skip", len(items)-len(fetch))

	for id, comments := range c.CommentsParallel(ctx, fetch, c.conditionalWorkers, top) {
		results[id] = comments
	}
	return results
}

// ShouldFetchComments predicts whether a work item has comments. It trusts
// System.CommentCount when present. Otherwise an item that has been revised
// after creation is assumed to have discussion. The prediction is a
// heuristic and may miss comments.
func ShouldFetchComments(raw workitem.RawWorkItem) bool {
	if raw.Has(fields.CommentCount) {
		n, _ := raw.Int(fields.CommentCount)
		return n > 0
	}

	history, _ := raw.Int(fields.HistoryCount)
	rev, ok := raw.Int(fields.Rev)
	if !ok {
		rev = raw.Rev
	}
	if history <= 1 && rev <= 1 {
		return false
	}

	changed := raw.String(fields.ChangedDate)
	created := raw.String(fields.CreatedDate)
	return changed != "" && created != "" && changed != created
}

// UpdatesParallel fetches update history for every id with at most workers
// requests in flight. A failed item maps to an empty list.
func (c *APIClient) UpdatesParallel(ctx context.Context, ids []int, workers int) map[int][]workitem.Update {
	return fanOut(ctx, ids, positiveOr(workers, c.historyWorkers), c.Updates, c.failureLogger("updates"))
}

// fanOut runs fetch for each id on a bounded pool. Workers are detached from
// the caller's cancellation; each request is bounded by its own timeout.
func fanOut[T any](ctx context.Context, ids []int, workers int, fetch func(context.Context, int) ([]T, error), onErr func(int, error)) map[int][]T {
	results := make(map[int][]T, len(ids))
	if len(ids) == 0 {
		return results
	}

	ctx = context.WithoutCancel(ctx)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	for _, id := range ids {
		g.Go(func() error {
			items, err := fetch(ctx, id)
			if err != nil {
				onErr(id, err)
				items = nil
			}
			if items == nil {
				items = []T{}
			}

			mu.Lock()
			results[id] = items
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *APIClient) failureLogger(what string) func(int, error) {
	return func(id int, err error) {
		c.logDebug("enrichment failed, using empty list", "kind", what, "id", id, "error", err)
	}
}

func isNotFound(err error) bool {
	var adoErr *witerrors.ADOError
	return witerrors.As(err, &adoErr) && adoErr.StatusCode == http.StatusNotFound
}
