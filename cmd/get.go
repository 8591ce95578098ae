package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/tools"
	"thoreinstein.com/wit/pkg/workitem"
)

var getNoComments bool

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a single work item",
	Long: `Fetch one work item with its comments and revision history.

Examples:
  wit get 4711
  wit get 4711 --no-comments -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return errors.Newf("invalid work item id %q", args[0])
		}
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
		return runGet(cmd.Context(), cmd.OutOrStdout(), d.session, d.client.WorkItemURL, id, !getNoComments, format)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().BoolVar(&getNoComments, "no-comments", false, "skip fetching discussion comments")
}

func runGet(ctx context.Context, w io.Writer, session *tools.Session, link func(int) string, id int, includeComments bool, format string) error {
	rec, err := session.GetWorkItem(ctx, id, includeComments)
	if err != nil {
		return err
	}
	return render(w, format, rec, func(w io.Writer) error {
		displayWorkItem(w, rec, link)
		return nil
	})
}

// displayWorkItem prints one record in detail.
func displayWorkItem(w io.Writer, r *workitem.Record, link func(int) string) {
	fmt.Fprintf(w, "#%d %s\n", r.ID, r.Title)
	fprintRule(w, 80)

	rows := [][2]string{
		{"Type", r.Type},
		{"State", r.State},
		{"Assigned", r.AssignedTo},
		{"Area", r.AreaPath},
		{"Iteration", r.IterationPath},
		{"Created", r.CreatedDate},
		{"Changed", r.ChangedDate},
	}
	if r.Priority != nil {
		rows = append(rows, [2]string{"Priority", fmt.Sprintf("P%d", *r.Priority)})
	}
	if len(r.Tags) > 0 {
		rows = append(rows, [2]string{"Tags", fmt.Sprint(r.Tags)})
	}
	if link != nil {
		rows = append(rows, [2]string{"Link", link(r.ID)})
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(w, "%-10s %s\n", row[0]+":", row[1])
	}

	if len(r.StateTransitions) > 0 {
		fmt.Fprintln(w, "\nState history:")
		for _, t := range r.StateTransitions {
			from := t.From
			if from == "" {
				from = "(new)"
			}
			fmt.Fprintf(w, "  %s  %s -> %s\n", datePrefix(t.Date), from, t.To)
		}
	}

	if len(r.Comments) > 0 {
		fmt.Fprintf(w, "\nComments (%d, %d external):\n", r.CommentCount, r.PartnerCommentCount)
		for _, c := range r.Comments {
			author := c.CreatedBy.DisplayName
			if author == "" {
				author = "Unknown"
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", datePrefix(c.CreatedDate), author, truncateCell(workitem.StripHTML(c.Text), 200))
		}
	}
}

func datePrefix(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}
