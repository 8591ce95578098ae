// Package ado is a REST client for the Azure DevOps work item tracking API.
package ado

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"thoreinstein.com/wit/pkg/config"
	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/workitem"
)

// Pool sizes used when the configuration leaves them unset.
const (
	DefaultCommentWorkers            = 5
	DefaultConditionalCommentWorkers = 20
	DefaultHistoryWorkers            = 10

	// BatchSize is the most ids workitemsbatch accepts per call.
	BatchSize = 200
	// MaxWIQLTop is the server-side cap on wiql results.
	MaxWIQLTop = 1000
)

// Client is the work item tracking surface used by the tool layer.
type Client interface {
	QueryIDs(ctx context.Context, query string, top int) ([]int, error)
	Batch(ctx context.Context, ids []int) ([]workitem.RawWorkItem, error)
	Comments(ctx context.Context, id, top int) ([]workitem.Comment, error)
	CommentsParallel(ctx context.Context, ids []int, workers, top int) map[int][]workitem.Comment
	CommentsConditional(ctx context.Context, items []workitem.RawWorkItem, top int) map[int][]workitem.Comment
	Updates(ctx context.Context, id int) ([]workitem.Update, error)
	UpdatesParallel(ctx context.Context, ids []int, workers int) map[int][]workitem.Update
	ListFields(ctx context.Context) ([]FieldDefinition, error)
	WorkItemURL(id int) string
}

// Compile-time interface check
var _ Client = (*APIClient)(nil)

// APIClient implements Client over HTTPS with bearer authentication.
type APIClient struct {
	baseURL            string
	organization       string
	project            string
	apiVersion         string
	commentsAPIVersion string

	tokens     oauth2.TokenSource
	httpClient *http.Client
	retry      witerrors.RetryConfig
	logger     *slog.Logger

	commentWorkers     int
	conditionalWorkers int
	historyWorkers     int
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *APIClient) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for request and retry events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *APIClient) {
		c.logger = logger
	}
}

// WithBaseURL overrides the service root (https://dev.azure.com).
func WithBaseURL(base string) Option {
	return func(c *APIClient) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(rc witerrors.RetryConfig) Option {
	return func(c *APIClient) {
		c.retry = rc
	}
}

// NewAPIClient creates a client for the configured organization and project.
func NewAPIClient(cfg *config.Config, tokens oauth2.TokenSource, opts ...Option) (*APIClient, error) {
	if cfg.ADO.Organization == "" {
		return nil, witerrors.NewConfigError("ado.organization", "organization is required")
	}
	if cfg.ADO.Project == "" {
		return nil, witerrors.NewConfigError("ado.project", "project is required")
	}
	if tokens == nil {
		return nil, witerrors.NewAuthError("ado", "no token source configured")
	}

	timeout := cfg.Fetch.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.ADO.BaseURL
	if base == "" {
		base = "https://dev.azure.com"
	}

	retry := witerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Fetch.MaxRetries

	c := &APIClient{
		baseURL:            strings.TrimSuffix(base, "/"),
		organization:       cfg.ADO.Organization,
		project:            cfg.ADO.Project,
		apiVersion:         orDefault(cfg.ADO.APIVersion, "7.1"),
		commentsAPIVersion: orDefault(cfg.ADO.CommentsAPIVersion, "7.1-preview.4"),
		tokens:             tokens,
		httpClient:         &http.Client{Timeout: timeout},
		retry:              retry,
		commentWorkers:     positiveOr(cfg.Fetch.CommentWorkers, DefaultCommentWorkers),
		conditionalWorkers: positiveOr(cfg.Fetch.ConditionalCommentWorkers, DefaultConditionalCommentWorkers),
		historyWorkers:     positiveOr(cfg.Fetch.HistoryWorkers, DefaultHistoryWorkers),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.logDebug("retrying request", "attempt", attempt, "delay", delay.Round(time.Millisecond), "error", err)
		}
	}

	return c, nil
}

// WorkItemURL returns the browser link for a work item.
func (c *APIClient) WorkItemURL(id int) string {
	return fmt.Sprintf("%s/%s/%s/_workitems/edit/%d", c.baseURL,
		url.PathEscape(c.organization), url.PathEscape(c.project), id)
}

func (c *APIClient) orgURL(path string, query url.Values) string {
	return c.buildURL("/"+url.PathEscape(c.organization)+path, query)
}

func (c *APIClient) projectURL(path string, query url.Values) string {
	return c.buildURL("/"+url.PathEscape(c.organization)+"/"+url.PathEscape(c.project)+path, query)
}

func (c *APIClient) buildURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		// $top must stay literal; url.Values would escape the dollar sign.
		u += "?" + strings.ReplaceAll(query.Encode(), "%24", "$")
	}
	return u
}

// request describes one REST call.
type request struct {
	op         string
	workItemID int
	method     string
	url        string
	body       any
}

// do runs req with retry and decodes a 2xx JSON body into out. A nil out
// discards the body. Non-2xx responses become *errors.ADOError.
func (c *APIClient) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return witerrors.Wrap(err, "failed to encode request body")
		}
	}

	return witerrors.Retry(ctx, c.retry, func() error {
		return c.attempt(ctx, req, payload, out)
	})
}

func (c *APIClient) attempt(ctx context.Context, req request, payload []byte, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return witerrors.Wrap(err, "failed to create request")
	}
	token.SetAuthHeader(httpReq)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.logDebug("ado request", "op", req.op, "method", req.method, "url", req.url)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return witerrors.NewADOErrorWithCause(req.op, req.workItemID, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return witerrors.NewADOErrorWithCause(req.op, req.workItemID, "failed to read response body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleHTTPError(req, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return witerrors.NewADOErrorWithCause(req.op, req.workItemID, "failed to parse response", err)
	}
	return nil
}

// invalidateToken drops a cached token the server refused, so the next
// request acquires a fresh one. Sources without a cache are left alone.
func (c *APIClient) invalidateToken() {
	if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
		c.logDebug("token rejected, invalidating cache")
		inv.Invalidate()
	}
}

// handleHTTPError converts a non-2xx response into a typed error carrying
// the server's message when one is present.
func handleHTTPError(req request, statusCode int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
		TypeKey string `json:"typeKey"`
	}
	msg := http.StatusText(statusCode)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 300 {
		msg = text
	}

	return witerrors.NewADOErrorWithStatus(req.op, req.workItemID, statusCode, msg)
}

func (c *APIClient) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
