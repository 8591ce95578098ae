package errors

import (
	"fmt"
	"strings"
)

// FormatUserError returns a user-friendly error message with actionable guidance.
// It examines the error chain and provides context-appropriate help text.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var configErr *ConfigError
	if As(err, &configErr) {
		return formatConfigError(configErr)
	}

	var authErr *AuthError
	if As(err, &authErr) {
		return formatAuthError(authErr)
	}

	var queryErr *QueryError
	if As(err, &queryErr) {
		return formatQueryError(queryErr)
	}

	var adoErr *ADOError
	if As(err, &adoErr) {
		return formatADOError(adoErr)
	}

	var aiErr *AIError
	if As(err, &aiErr) {
		return formatAIError(aiErr)
	}

	// Default: return the error message as-is
	return err.Error()
}

// formatConfigError formats a ConfigError with actionable guidance.
func formatConfigError(err *ConfigError) string {
	var b strings.Builder

	if err.Field != "" {
		fmt.Fprintf(&b, "Configuration error in '%s': %s\n", err.Field, err.Message)
	} else {
		fmt.Fprintf(&b, "Configuration error: %s\n", err.Message)
	}

	b.WriteString("\nTo fix this:\n")
	b.WriteString("  • Check your config file: ~/.config/wit/config.toml\n")
	b.WriteString("  • Or set the matching WIT_* environment variable (e.g. WIT_ADO_ORGANIZATION)\n")
	b.WriteString("  • Run 'wit config show' to see the effective configuration\n")

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatAuthError(err *AuthError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Authentication error (%s): %s\n", err.Provider, err.Message)

	switch err.Provider {
	case "azure_cli":
		b.WriteString("\nTo fix this:\n")
		b.WriteString("  • Run 'az login' and make sure the Azure CLI is on your PATH\n")
		b.WriteString("  • Verify ado.resource_id matches the Azure DevOps resource\n")
	case "token":
		b.WriteString("\nTo fix this:\n")
		b.WriteString("  • Set WIT_ADO_TOKEN to a valid personal access or bearer token\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

func formatQueryError(err *QueryError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query error during %s: %s\n", err.Op, err.Message)

	switch err.Op {
	case "compile":
		if err.Pattern != "" {
			fmt.Fprintf(&b, "\nA value contained the disallowed pattern %q. To fix this:\n", err.Pattern)
			b.WriteString("  • Remove markup, comment markers and statement keywords from filter values\n")
		}
	case "parse":
		b.WriteString("\nThe request could not be turned into a query. To fix this:\n")
		b.WriteString("  • Rephrase the request with explicit types, states or dates\n")
		b.WriteString("  • Or pass work item ids directly (e.g. 'ids 123, 456')\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

// formatADOError formats an ADOError with actionable guidance based on status code.
func formatADOError(err *ADOError) string {
	var b strings.Builder

	if err.WorkItemID > 0 {
		fmt.Fprintf(&b, "Azure DevOps error during %s for work item %d: %s\n", err.Operation, err.WorkItemID, err.Message)
	} else {
		fmt.Fprintf(&b, "Azure DevOps error during %s: %s\n", err.Operation, err.Message)
	}

	switch err.StatusCode {
	case 400:
		b.WriteString("\nThe query was rejected. To fix this:\n")
		b.WriteString("  • Run with --wiql-only to inspect the generated query\n")
		b.WriteString("  • Check field reference names with 'wit explain <field>'\n")

	case 401:
		b.WriteString("\nAuthentication failed. To fix this:\n")
		b.WriteString("  • Run 'az login' to refresh your Azure CLI session\n")
		b.WriteString("  • Or set WIT_ADO_TOKEN to a valid token\n")

	case 403:
		b.WriteString("\nAccess denied. To fix this:\n")
		b.WriteString("  • Ensure your account can read work items in this project\n")

	case 404:
		b.WriteString("\nResource not found. To fix this:\n")
		b.WriteString("  • Verify ado.organization and ado.project\n")
		b.WriteString("  • Verify the work item id exists\n")

	case 429:
		b.WriteString("\nAzure DevOps rate limit exceeded. To fix this:\n")
		b.WriteString("  • Wait before making more requests\n")
		b.WriteString("  • Lower fetch.conditional_comment_workers and fetch.history_workers\n")

	case 500, 502, 503, 504:
		b.WriteString("\nAzure DevOps server error. To fix this:\n")
		b.WriteString("  • Wait a few moments and try again\n")
		b.WriteString("  • Check Azure DevOps Status: https://status.dev.azure.com\n")
	}

	if err.Retryable {
		b.WriteString("\nThis error may be temporary. The operation was retried automatically.\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}

// formatAIError formats an AIError with actionable guidance based on status code.
func formatAIError(err *AIError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "AI provider error (%s) during %s: %s\n", err.Provider, err.Operation, err.Message)

	switch err.StatusCode {
	case 401:
		fmt.Fprintf(&b, "\nAuthentication failed with %s. To fix this:\n", err.Provider)
		b.WriteString("  • Set ai.api_key or the provider's API key environment variable\n")
		b.WriteString("  • Verify your API key is valid and not expired\n")

	case 403:
		fmt.Fprintf(&b, "\nAccess denied by %s. To fix this:\n", err.Provider)
		b.WriteString("  • Check your API key permissions\n")
		b.WriteString("  • Ensure the model or deployment is available to your account\n")

	case 404:
		fmt.Fprintf(&b, "\nModel not found on %s. To fix this:\n", err.Provider)
		b.WriteString("  • Check ai.model and ai.deployment\n")

	case 429:
		fmt.Fprintf(&b, "\n%s rate limit exceeded. To fix this:\n", err.Provider)
		b.WriteString("  • Wait a few minutes before retrying\n")
		b.WriteString("  • Reduce request frequency\n")

	case 500, 502, 503, 504:
		fmt.Fprintf(&b, "\n%s server error. To fix this:\n", err.Provider)
		b.WriteString("  • Wait a few moments and try again\n")
	}

	if err.Retryable {
		b.WriteString("\nThis error may be temporary. The operation will be retried automatically.\n")
	}

	if err.Cause != nil {
		fmt.Fprintf(&b, "\nUnderlying error: %v", err.Cause)
	}

	return b.String()
}
