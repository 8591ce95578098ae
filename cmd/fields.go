package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/ado"
)

var fieldsFilter string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the fields defined in the organization",
	Long: `List every work item field the organization defines, sorted by reference name.

Examples:
  wit fields
  wit fields --filter priority`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := currentFormat()
		if err != nil {
			return err
		}
		d, err := buildDeps(cfg)
		if err != nil {
			return err
		}
		return runFields(cmd.Context(), cmd.OutOrStdout(), d.client, fieldsFilter, format)
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)

	fieldsCmd.Flags().StringVarP(&fieldsFilter, "filter", "f", "", "only show fields whose name contains this text")
}

func runFields(ctx context.Context, w io.Writer, client ado.Client, filter, format string) error {
	defs, err := client.ListFields(ctx)
	if err != nil {
		return err
	}

	defs = filterFields(defs, filter)
	sort.Slice(defs, func(i, j int) bool { return defs[i].ReferenceName < defs[j].ReferenceName })

	return render(w, format, defs, func(w io.Writer) error {
		fmt.Fprintf(w, "%-45s  %-30s  %s\n", "REFERENCE NAME", "NAME", "TYPE")
		fprintRule(w, 95)
		for _, f := range defs {
			fmt.Fprintf(w, "%-45s  %-30s  %s\n", truncateCell(f.ReferenceName, 45), truncateCell(f.Name, 30), f.Type)
		}
		fmt.Fprintf(w, "\nTotal: %d field(s)\n", len(defs))
		return nil
	})
}

func filterFields(defs []ado.FieldDefinition, filter string) []ado.FieldDefinition {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return defs
	}
	out := make([]ado.FieldDefinition, 0, len(defs))
	for _, f := range defs {
		if strings.Contains(strings.ToLower(f.ReferenceName), filter) || strings.Contains(strings.ToLower(f.Name), filter) {
			out = append(out, f)
		}
	}
	return out
}
