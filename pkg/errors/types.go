// Package errors provides typed errors for the wit project.
//
// This package defines domain-specific error types that provide structured
// error information for different subsystems (config, auth, Azure DevOps,
// query compilation, AI). All error types implement the standard error
// interface and support errors.Is() and errors.As() from the standard library
// and cockroachdb/errors.
package errors

import (
	"context"
	"fmt"
	"net"

	"github.com/cockroachdb/errors"
)

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Field   string // Which config field has the issue
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with an underlying cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// AuthError represents a failure to obtain a bearer token.
// Auth errors are never retried.
type AuthError struct {
	Provider string // e.g., "azure_cli", "token"
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s failed: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates a new AuthError.
func NewAuthError(provider, message string) *AuthError {
	return &AuthError{Provider: provider, Message: message}
}

// NewAuthErrorWithCause creates a new AuthError with an underlying cause.
func NewAuthErrorWithCause(provider, message string, cause error) *AuthError {
	return &AuthError{Provider: provider, Message: message, Cause: cause}
}

// ADOError represents Azure DevOps REST API errors.
type ADOError struct {
	Operation  string // e.g., "QueryIDs", "Batch", "Comments"
	WorkItemID int
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ADOError) Error() string {
	if e.WorkItemID > 0 && e.StatusCode > 0 {
		return fmt.Sprintf("ado %s for #%d failed (HTTP %d): %s", e.Operation, e.WorkItemID, e.StatusCode, e.Message)
	}
	if e.WorkItemID > 0 {
		return fmt.Sprintf("ado %s for #%d failed: %s", e.Operation, e.WorkItemID, e.Message)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("ado %s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ado %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ADOError) Unwrap() error {
	return e.Cause
}

// NewADOError creates a new ADOError.
func NewADOError(operation, message string) *ADOError {
	return &ADOError{Operation: operation, Message: message}
}

// NewADOErrorWithStatus creates a new ADOError with HTTP status code.
func NewADOErrorWithStatus(operation string, workItemID, statusCode int, message string) *ADOError {
	return &ADOError{
		Operation:  operation,
		WorkItemID: workItemID,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewADOErrorWithCause creates a new ADOError with an underlying cause.
// Timeouts and connection failures are marked retryable.
func NewADOErrorWithCause(operation string, workItemID int, message string, cause error) *ADOError {
	return &ADOError{
		Operation:  operation,
		WorkItemID: workItemID,
		Message:    message,
		Retryable:  IsRetryable(cause) || IsTransient(cause),
		Cause:      cause,
	}
}

// QueryError represents failures while turning a request into WIQL or
// running the query pipeline.
type QueryError struct {
	Op      string // "compile", "parse", "query"
	Message string
	Pattern string // Rejected literal pattern, for compile errors
	Cause   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("query %s failed: %s (pattern %q)", e.Op, e.Message, e.Pattern)
	}
	return fmt.Sprintf("query %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(op, message string) *QueryError {
	return &QueryError{Op: op, Message: message}
}

// NewQueryErrorWithCause creates a new QueryError with an underlying cause.
func NewQueryErrorWithCause(op, message string, cause error) *QueryError {
	return &QueryError{Op: op, Message: message, Cause: cause}
}

// NewSanitizeError reports a literal rejected by the sanitizer.
func NewSanitizeError(pattern string) *QueryError {
	return &QueryError{Op: "compile", Message: "potentially dangerous pattern in literal", Pattern: pattern}
}

// AIError represents AI provider errors.
type AIError struct {
	Provider   string // e.g., "anthropic", "azure_openai"
	Operation  string // e.g., "Chat", "Parse"
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ai %s %s failed (HTTP %d): %s", e.Provider, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ai %s %s failed: %s", e.Provider, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// NewAIError creates a new AIError.
func NewAIError(provider, operation, message string) *AIError {
	return &AIError{Provider: provider, Operation: operation, Message: message}
}

// NewAIErrorWithStatus creates a new AIError with HTTP status code.
func NewAIErrorWithStatus(provider, operation string, statusCode int, message string) *AIError {
	return &AIError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  isRetryableHTTPStatus(statusCode),
	}
}

// NewAIErrorWithCause creates a new AIError with an underlying cause.
func NewAIErrorWithCause(provider, operation, message string, cause error) *AIError {
	return &AIError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// IsRetryable checks if an error or any error in its chain is retryable.
// It returns true if the error itself is retryable, or if any wrapped error
// is marked as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var adoErr *ADOError
	if errors.As(err, &adoErr) {
		return adoErr.Retryable
	}

	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}

	return false
}

// IsTransient reports whether err is a timeout or connection-level failure.
// Caller cancellation is not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsConfigError checks if an error or any error in its chain is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsAuthError checks if an error or any error in its chain is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsADOError checks if an error or any error in its chain is an ADOError.
func IsADOError(err error) bool {
	var adoErr *ADOError
	return errors.As(err, &adoErr)
}

// IsQueryError checks if an error or any error in its chain is a QueryError.
func IsQueryError(err error) bool {
	var queryErr *QueryError
	return errors.As(err, &queryErr)
}

// IsAIError checks if an error or any error in its chain is an AIError.
func IsAIError(err error) bool {
	var aiErr *AIError
	return errors.As(err, &aiErr)
}

// Kind returns a short stable name for the error's type, used in tool
// result bags.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfigError(err):
		return "config"
	case IsAuthError(err):
		return "auth"
	case IsQueryError(err):
		return "query"
	case IsADOError(err):
		return "ado"
	case IsAIError(err):
		return "ai"
	default:
		return "internal"
	}
}

// isRetryableHTTPStatus returns true for HTTP status codes that are typically retryable.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return statusCode >= 500 && statusCode < 600
	}
}

// Re-export commonly used functions from cockroachdb/errors for convenience.
// This allows consumers to use witerrors.Wrap() instead of importing two packages.
var (
	// New creates a new error with the given message.
	New = errors.New

	// Newf creates a new error with formatted message.
	Newf = errors.Newf

	// Wrap wraps an error with additional context.
	Wrap = errors.Wrap

	// Wrapf wraps an error with formatted additional context.
	Wrapf = errors.Wrapf

	// Is reports whether any error in err's chain matches target.
	Is = errors.Is

	// As finds the first error in err's chain that matches target.
	As = errors.As

	// Cause returns the root cause of an error.
	Cause = errors.Cause

	// Join combines several errors into one that matches each of them.
	Join = errors.Join
)
