package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/tools"
)

var explainCmd = &cobra.Command{
	Use:   "explain <field>",
	Short: "Describe a work item field",
	Long: `Resolve a field name to its reference name and print a short description.
Friendly names such as "priority" or "assigned to" are accepted. Known fields
also show their data type and the WIQL operators valid for it.

Examples:
  wit explain priority
  wit explain System.IterationPath
  wit explain state --type "User Story"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := currentFormat()
		if err != nil {
			return err
		}
		return runExplain(cmd.OutOrStdout(), tools.NewSession(nil), args[0], explainType, format)
	},
}

var explainType string

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVarP(&explainType, "type", "t", "", "work item type whose usual states to list for the state field")
}

func runExplain(w io.Writer, session *tools.Session, field, workItemType, format string) error {
	e := session.ExplainField(field, workItemType)
	return render(w, format, e, func(w io.Writer) error {
		fmt.Fprintf(w, "%s (%s)\n  %s\n", e.Field, e.ReferenceName, e.Explanation)
		if e.Type != "" {
			fmt.Fprintf(w, "  Type:      %s\n", e.Type)
			fmt.Fprintf(w, "  Operators: %s\n", strings.Join(e.Operators, ", "))
		}
		if len(e.States) > 0 {
			fmt.Fprintf(w, "  States:    %s\n", strings.Join(e.States, ", "))
		}
		return nil
	})
}
