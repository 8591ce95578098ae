package wiql

import (
	"fmt"
	"strings"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

// deniedPatterns are rejected anywhere in a literal, compared upper-cased.
var deniedPatterns = []string{
	"<", ">", "&", ";", "--", "/*", "*/",
	"DROP ", "DELETE ", "INSERT ", "UPDATE ", "EXEC",
}

// Sanitize converts v to a string literal body safe to place between single
// quotes. Values containing a denied pattern are rejected with a
// *errors.QueryError naming the pattern. This is a denylist: any other text,
// including non-ASCII, passes through with single quotes doubled.
func Sanitize(v any) (string, error) {
	s := fmt.Sprint(v)
	upper := strings.ToUpper(s)

	for _, pattern := range deniedPatterns {
		if strings.Contains(upper, pattern) {
			return "", witerrors.NewSanitizeError(pattern)
		}
	}

	return strings.ReplaceAll(s, "'", "''"), nil
}

// statementPatterns are the denied patterns that also apply to a whole
// query. Comparison operators are left out since WIQL needs them.
var statementPatterns = []string{
	";", "--", "/*", "*/",
	"DROP ", "DELETE ", "INSERT ", "UPDATE ", "EXEC",
}

// CheckQuery rejects a complete query that does not start with SELECT or
// that contains a statement separator, a comment or a write keyword.
func CheckQuery(query string) error {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT") {
		return witerrors.NewQueryError("compile", "query must start with SELECT")
	}
	for _, pattern := range statementPatterns {
		if strings.Contains(upper, pattern) {
			return &witerrors.QueryError{Op: "compile", Message: "potentially dangerous pattern in query", Pattern: pattern}
		}
	}
	return nil
}

// quoteList sanitizes and quotes values as a comma-separated IN list body.
func quoteList(values []string) (string, error) {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		s, err := Sanitize(v)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, "'"+s+"'")
	}
	return strings.Join(quoted, ","), nil
}
