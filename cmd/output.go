package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"
	"go.yaml.in/yaml/v3"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// resolveFormat picks the output format. An explicit flag wins; otherwise a
// terminal gets a table and anything else gets JSON.
func resolveFormat(flag string, isTTY bool) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(flag)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "":
		if isTTY {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", errors.Newf("unsupported output format %q (use table, json or yaml)", flag)
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func currentFormat() (string, error) {
	return resolveFormat(outputFormat, stdoutIsTerminal())
}

// render writes v in the requested format. table is used for the table
// format and may be nil, in which case JSON is written instead.
func render(w io.Writer, format string, v any, table func(io.Writer) error) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(v)); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return enc.Close()
	case formatTable:
		if table != nil {
			return table(w)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return errors.Wrap(enc.Encode(v), "failed to encode json")
}

// toPlain round-trips v through JSON so YAML output uses the same field
// names as JSON output.
func toPlain(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return v
	}
	return plain
}

func truncateCell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func fprintRule(w io.Writer, width int) {
	fmt.Fprintln(w, strings.Repeat("-", width))
}
