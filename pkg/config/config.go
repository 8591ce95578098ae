package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	witerrors "thoreinstein.com/wit/pkg/errors"
	"thoreinstein.com/wit/pkg/wiql"
)

// Config represents the application configuration
type Config struct {
	ADO   ADOConfig   `mapstructure:"ado" toml:"ado"`
	Auth  AuthConfig  `mapstructure:"auth" toml:"auth"`
	AI    AIConfig    `mapstructure:"ai" toml:"ai"`
	Query QueryConfig `mapstructure:"query" toml:"query"`
	Fetch FetchConfig `mapstructure:"fetch" toml:"fetch"`
	Cache CacheConfig `mapstructure:"cache" toml:"cache"`
}

// ADOConfig holds Azure DevOps connection configuration
type ADOConfig struct {
	Organization       string   `mapstructure:"organization" toml:"organization"`
	Project            string   `mapstructure:"project" toml:"project"`
	BaseURL            string   `mapstructure:"base_url" toml:"base_url"`                         // Default: https://dev.azure.com
	APIVersion         string   `mapstructure:"api_version" toml:"api_version"`                   // e.g., "7.1"
	CommentsAPIVersion string   `mapstructure:"comments_api_version" toml:"comments_api_version"` // Default: 7.1-preview.4
	ResourceID         string   `mapstructure:"resource_id" toml:"resource_id"`                   // AAD resource for az CLI tokens
	Token              string   `mapstructure:"token" toml:"token"`                               // For token auth (WIT_ADO_TOKEN env var takes precedence)
	InternalDomains    []string `mapstructure:"internal_domains" toml:"internal_domains"`         // Comment authors outside these are partners
}

// AuthConfig holds credential acquisition configuration
type AuthConfig struct {
	Method       string        `mapstructure:"method" toml:"method"`               // "azure_cli" or "token"
	TokenTTL     time.Duration `mapstructure:"token_ttl" toml:"token_ttl"`         // In-process cache lifetime (default: 55m)
	PersistToken bool          `mapstructure:"persist_token" toml:"persist_token"` // Keep az CLI tokens in the OS keychain
	AzCommand    string        `mapstructure:"az_command" toml:"az_command"`       // Default: az
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Enabled    bool   `mapstructure:"enabled" toml:"enabled"`
	Provider   string `mapstructure:"provider" toml:"provider"`       // "azure_openai", "openai", "anthropic", "ollama", "gemini"
	Model      string `mapstructure:"model" toml:"model"`             // Empty means use per-provider default
	APIKey     string `mapstructure:"api_key" toml:"api_key"`         // Provider API key (env var takes precedence)
	Endpoint   string `mapstructure:"endpoint" toml:"endpoint"`       // Custom endpoint URL
	APIVersion string `mapstructure:"api_version" toml:"api_version"` // Azure OpenAI api-version
	Deployment string `mapstructure:"deployment" toml:"deployment"`   // Azure OpenAI deployment name

	ParserTokens      int   `mapstructure:"parser_tokens" toml:"parser_tokens"`             // Budget for query parsing (default: 2000)
	AnalysisTokens    int   `mapstructure:"analysis_tokens" toml:"analysis_tokens"`         // Budget for analysis (default: 10000)
	MaxTokens         int   `mapstructure:"max_tokens" toml:"max_tokens"`                   // Ceiling for truncation retries (default: 8000)
	RetryTokenSizes   []int `mapstructure:"retry_token_sizes" toml:"retry_token_sizes"`     // Escalation ladder for per-item summaries
	ParserMaxAttempts int   `mapstructure:"parser_max_attempts" toml:"parser_max_attempts"` // AI parse attempts (default: 3)
}

// QueryConfig holds result size limits
type QueryConfig struct {
	DefaultMaxItems int `mapstructure:"default_max_items" toml:"default_max_items"` // Default: 150
	MaxItems        int `mapstructure:"max_items" toml:"max_items"`                 // Hard ceiling: 250
	MaxComments     int `mapstructure:"max_comments" toml:"max_comments"`           // Comments per work item: 50
}

// FetchConfig holds transport tuning
type FetchConfig struct {
	MaxRetries                int           `mapstructure:"max_retries" toml:"max_retries"`
	RequestTimeout            time.Duration `mapstructure:"request_timeout" toml:"request_timeout"`
	CommentWorkers            int           `mapstructure:"comment_workers" toml:"comment_workers"`
	ConditionalCommentWorkers int           `mapstructure:"conditional_comment_workers" toml:"conditional_comment_workers"`
	HistoryWorkers            int           `mapstructure:"history_workers" toml:"history_workers"`
}

// CacheConfig holds the follow-up analysis cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" toml:"ttl"`
}

// SecurityWarning represents a configuration security issue
type SecurityWarning struct {
	Field   string
	Message string
}

// ValidAuthMethods is the list of supported credential sources.
var ValidAuthMethods = []string{"azure_cli", "token"}

// Load loads the configuration from file and environment variables. The
// result is not validated; commands that talk to Azure DevOps call Validate
// before connecting so offline commands work without an organization.
func Load() (*Config, error) {
	config := &Config{}

	setDefaults()
	bindLegacyEnv()

	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return config, nil
}

// CheckSecurityWarnings returns warnings for insecure configuration practices.
// Call this when loading config to warn users about tokens stored in config files.
func CheckSecurityWarnings(config *Config) []SecurityWarning {
	var warnings []SecurityWarning

	if config.ADO.Token != "" && os.Getenv("WIT_ADO_TOKEN") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "ado.token",
			Message: "Azure DevOps token is set in config file. For security, use WIT_ADO_TOKEN environment variable or 'az login' instead.",
		})
	}

	if config.AI.APIKey != "" && os.Getenv("WIT_AI_API_KEY") == "" &&
		os.Getenv("AZURE_OPENAI_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" &&
		os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("GOOGLE_GENAI_API_KEY") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "ai.api_key",
			Message: "AI API key is set in config file. For security, use environment variables (AZURE_OPENAI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, or WIT_AI_API_KEY) instead.",
		})
	}

	return warnings
}

// ValidateAPIVersion checks that v looks like an Azure DevOps api-version
// such as "7.1" or "7.1-preview.4".
func ValidateAPIVersion(v string) error {
	if v == "" {
		return errors.New("api version is required")
	}
	if _, err := semver.NewVersion(v); err != nil {
		return errors.Wrapf(err, "invalid api version %q", v)
	}
	return nil
}

// Validate validates the configuration and returns any validation errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ADO.Organization) == "" {
		return witerrors.NewConfigError("ado.organization", "organization is required (set WIT_ADO_ORGANIZATION or AZDO_ORG)")
	}
	if strings.TrimSpace(c.ADO.Project) == "" {
		return witerrors.NewConfigError("ado.project", "project is required (set WIT_ADO_PROJECT or AZDO_PROJECT)")
	}
	if err := ValidateAPIVersion(c.ADO.APIVersion); err != nil {
		return witerrors.NewConfigErrorWithCause("ado.api_version", "must be a version like 7.1", err)
	}
	if err := ValidateAPIVersion(c.ADO.CommentsAPIVersion); err != nil {
		return witerrors.NewConfigErrorWithCause("ado.comments_api_version", "must be a version like 7.1-preview.4", err)
	}

	validMethod := false
	for _, m := range ValidAuthMethods {
		if c.Auth.Method == m {
			validMethod = true
			break
		}
	}
	if !validMethod {
		return witerrors.NewConfigError("auth.method", "must be one of: azure_cli, token")
	}
	if c.Auth.Method == "azure_cli" && c.ADO.ResourceID == "" {
		return witerrors.NewConfigError("ado.resource_id", "resource id is required for azure_cli auth (set AZDO_RESOURCE_ID)")
	}

	if c.Query.MaxItems <= 0 || c.Query.DefaultMaxItems <= 0 || c.Query.MaxComments <= 0 {
		return witerrors.NewConfigError("query", "item and comment limits must be positive")
	}
	if c.Query.MaxItems > wiql.MaxItemsLimit {
		return witerrors.NewConfigError("query.max_items", fmt.Sprintf("must not exceed %d", wiql.MaxItemsLimit))
	}
	if c.Query.DefaultMaxItems > c.Query.MaxItems {
		return witerrors.NewConfigError("query.default_max_items", "must not exceed query.max_items")
	}
	if c.Fetch.CommentWorkers <= 0 || c.Fetch.ConditionalCommentWorkers <= 0 || c.Fetch.HistoryWorkers <= 0 {
		return witerrors.NewConfigError("fetch", "worker counts must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return witerrors.NewConfigError("fetch.max_retries", "must not be negative")
	}
	if c.Fetch.RequestTimeout <= 0 {
		return witerrors.NewConfigError("fetch.request_timeout", "must be positive")
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Azure DevOps defaults
	viper.SetDefault("ado.organization", "")
	viper.SetDefault("ado.project", "")
	viper.SetDefault("ado.base_url", "https://dev.azure.com")
	viper.SetDefault("ado.api_version", "7.1")
	viper.SetDefault("ado.comments_api_version", "7.1-preview.4")
	viper.SetDefault("ado.resource_id", "")
	viper.SetDefault("ado.token", "")
	viper.SetDefault("ado.internal_domains", []string{"microsoft.com", "contoso.com"})

	// Auth defaults
	viper.SetDefault("auth.method", "azure_cli")
	viper.SetDefault("auth.token_ttl", 55*time.Minute)
	viper.SetDefault("auth.persist_token", false)
	viper.SetDefault("auth.az_command", "az")

	// AI defaults
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "azure_openai")
	viper.SetDefault("ai.model", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.endpoint", "")
	viper.SetDefault("ai.api_version", "2024-12-01-preview")
	viper.SetDefault("ai.deployment", "")
	viper.SetDefault("ai.parser_tokens", 2000)
	viper.SetDefault("ai.analysis_tokens", 10000)
	viper.SetDefault("ai.max_tokens", 8000)
	viper.SetDefault("ai.retry_token_sizes", []int{800, 1200, 1800, 2500, 3500, 5000})
	viper.SetDefault("ai.parser_max_attempts", 3)

	// Query defaults
	viper.SetDefault("query.default_max_items", 150)
	viper.SetDefault("query.max_items", 250)
	viper.SetDefault("query.max_comments", 50)

	// Fetch defaults
	viper.SetDefault("fetch.max_retries", 3)
	viper.SetDefault("fetch.request_timeout", 30*time.Second)
	viper.SetDefault("fetch.comment_workers", 5)
	viper.SetDefault("fetch.conditional_comment_workers", 20)
	viper.SetDefault("fetch.history_workers", 10)

	// Cache defaults
	viper.SetDefault("cache.ttl", 30*time.Minute)
}

// bindLegacyEnv maps the AZDO_* and AZURE_OPENAI_* variables used by
// existing .env files onto config keys. WIT_* variables still win because
// viper checks the bound names in order.
func bindLegacyEnv() {
	bindings := map[string][]string{
		"ado.organization":     {"WIT_ADO_ORGANIZATION", "AZDO_ORG"},
		"ado.project":          {"WIT_ADO_PROJECT", "AZDO_PROJECT"},
		"ado.api_version":      {"WIT_ADO_API_VERSION", "AZDO_API_VERSION"},
		"ado.resource_id":      {"WIT_ADO_RESOURCE_ID", "AZDO_RESOURCE_ID"},
		"ai.endpoint":          {"WIT_AI_ENDPOINT", "AZURE_OPENAI_ENDPOINT"},
		"ai.api_version":       {"WIT_AI_API_VERSION", "AZURE_OPENAI_API_VERSION"},
		"ai.deployment":        {"WIT_AI_DEPLOYMENT", "AZURE_OPENAI_DEPLOYMENT"},
		"ai.model":             {"WIT_AI_MODEL", "AZURE_OPENAI_MODEL"},
		"ai.parser_tokens":     {"WIT_AI_PARSER_TOKENS", "AZURE_OPENAI_PARSER_TOKENS"},
		"ai.retry_token_sizes": {"WIT_AI_RETRY_TOKEN_SIZES", "AZURE_OPENAI_RETRY_TOKEN_SIZES"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = viper.BindEnv(args...)
	}
}
