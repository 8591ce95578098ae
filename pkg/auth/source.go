// Package auth supplies bearer tokens for Azure DevOps requests.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"thoreinstein.com/wit/pkg/config"
	witerrors "thoreinstein.com/wit/pkg/errors"
)

// DefaultTTL is how long an acquired token is reused in-process.
const DefaultTTL = 55 * time.Minute

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// AzureCLISource obtains AAD tokens with `az account get-access-token`.
type AzureCLISource struct {
	Command  string
	Resource string
	Timeout  time.Duration
	Run      CommandRunner
}

var _ oauth2.TokenSource = (*AzureCLISource)(nil)

// Token runs the Azure CLI and returns its access token. Failures are
// *errors.AuthError and are never retried.
func (s *AzureCLISource) Token() (*oauth2.Token, error) {
	command := s.Command
	if command == "" {
		command = "az"
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	run := s.Run
	if run == nil {
		run = runCommand
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := run(ctx, command, "account", "get-access-token", "--resource", s.Resource, "--output", "json")
	if err != nil {
		var execErr *exec.Error
		if witerrors.As(err, &execErr) && witerrors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, witerrors.NewAuthErrorWithCause("azure_cli", "Azure CLI ('az') not found. Install Azure CLI and run 'az login'", err)
		}
		return nil, witerrors.NewAuthErrorWithCause("azure_cli", "failed to get access token with Azure CLI; ensure you ran 'az login'", err)
	}

	var payload struct {
		AccessToken    string `json:"accessToken"`
		AccessTokenAlt string `json:"access_token"`
		TokenType      string `json:"tokenType"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, witerrors.NewAuthErrorWithCause("azure_cli", "failed to parse Azure CLI output", err)
	}

	token := payload.AccessToken
	if token == "" {
		token = payload.AccessTokenAlt
	}
	if token == "" {
		return nil, witerrors.NewAuthError("azure_cli", "Azure CLI output did not contain an access token")
	}

	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, witerrors.Wrapf(err, "az error: %s", msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// CachedSource reuses a token for a fixed TTL and refreshes it lazily. The
// current token sits behind an atomic pointer: concurrent refreshes may race
// and the last writer wins.
type CachedSource struct {
	source oauth2.TokenSource
	ttl    time.Duration
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[oauth2.Token]
}

var _ oauth2.TokenSource = (*CachedSource)(nil)

// CacheOption configures a CachedSource.
type CacheOption func(*CachedSource)

// WithStore persists refreshed tokens and seeds the cache from the store.
func WithStore(store TokenStore) CacheOption {
	return func(c *CachedSource) {
		c.store = store
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CachedSource) {
		c.now = now
	}
}

// WithLogger sets a logger for refresh events.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedSource) {
		c.logger = logger
	}
}

// NewCachedSource wraps source with an in-process TTL cache.
func NewCachedSource(source oauth2.TokenSource, ttl time.Duration, opts ...CacheOption) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &CachedSource{source: source, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token, refreshing it when absent or expired.
func (c *CachedSource) Token() (*oauth2.Token, error) {
	now := c.now()

	if tok := c.current.Load(); tok != nil && now.Before(tok.Expiry) {
		return tok, nil
	}

	if c.store != nil {
		if tok, err := c.store.Get(); err == nil && tok != nil && now.Before(tok.Expiry) {
			c.current.Store(tok)
			return tok, nil
		}
	}

	c.logDebug("refreshing bearer token")

	fresh, err := c.source.Token()
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken: fresh.AccessToken,
		TokenType:   fresh.TokenType,
		Expiry:      now.Add(c.ttl),
	}
	c.current.Store(tok)

	if c.store != nil {
		if err := c.store.Set(tok); err != nil {
			c.logDebug("failed to persist token", "error", err)
		}
	}

	return tok, nil
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *CachedSource) Invalidate() {
	c.current.Store(nil)
	if c.store != nil {
		_ = c.store.Clear()
	}
}

func (c *CachedSource) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// NewTokenSource builds the token source selected by auth.method.
func NewTokenSource(cfg *config.Config, logger *slog.Logger) (oauth2.TokenSource, error) {
	switch cfg.Auth.Method {
	case "token":
		token := os.Getenv("WIT_ADO_TOKEN")
		if token == "" {
			token = cfg.ADO.Token
		}
		if token == "" {
			return nil, witerrors.NewAuthError("token", "no token configured (set WIT_ADO_TOKEN or ado.token)")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil

	case "azure_cli", "":
		az := &AzureCLISource{
			Command:  cfg.Auth.AzCommand,
			Resource: cfg.ADO.ResourceID,
			Timeout:  cfg.Fetch.RequestTimeout,
		}
		opts := []CacheOption{WithLogger(logger)}
		if cfg.Auth.PersistToken {
			opts = append(opts, WithStore(NewTokenStore(cfg.ADO.Organization, cfg.ADO.ResourceID)))
		}
		return NewCachedSource(az, cfg.Auth.TokenTTL, opts...), nil

	default:
		return nil, witerrors.NewConfigError("auth.method", "unsupported auth method: "+cfg.Auth.Method)
	}
}
