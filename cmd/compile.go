package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/wiql"
)

var compileCmd = &cobra.Command{
	Use:   "compile [spec.json]",
	Short: "Compile a query specification to WIQL",
	Long: `Read a query specification as JSON from a file, or from stdin when no file
is given, and print the WIQL it compiles to. Nothing is sent to Azure DevOps.

Example:
  echo '{"filters":{"work_item_types":["Bug"],"states_in":["Active"]}}' | wit compile`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to open %s", args[0])
			}
			defer f.Close()
			in = f
		}
		return runCompile(in, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func runCompile(in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()

	var spec wiql.QuerySpec
	if err := dec.Decode(&spec); err != nil {
		return errors.Wrap(err, "failed to parse query specification")
	}

	query, err := wiql.Compile(spec)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, query)
	return nil
}
