package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/ai"
	"thoreinstein.com/wit/pkg/bootstrap"
	"thoreinstein.com/wit/pkg/intent"
	"thoreinstein.com/wit/pkg/tools"
	"thoreinstein.com/wit/pkg/workitem"
)

// QueryOptions holds the flags of the query command.
type QueryOptions struct {
	MaxItems   int
	NoComments bool
	NoAI       bool
	Analyze    string
	Summaries  bool
	WIQLOnly   bool
	ShowQuery  bool
}

var queryOpts QueryOptions

var queryCmd = &cobra.Command{
	Use:   "query <request...>",
	Short: "Query work items in plain language",
	Long: `Turn a plain-language request into a WIQL query, run it, and print the
enriched work items.

When the request asks for a summary or analysis ("... and summarize the
comments") the results are analyzed by the configured LLM. --analyze supplies
an analysis prompt explicitly.

Examples:
  wit query active bugs assigned to me
  wit query "p1 user stories tagged release-2 changed last week"
  wit query bugs from last 14 days --analyze "write a newsletter"
  wit query my open tasks --wiql-only`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := currentFormat()
		if err != nil {
			return err
		}
		request := strings.Join(args, " ")

		if queryOpts.WIQLOnly {
			logger := bootstrap.NewLogger(verbose)
			heuristic := intent.NewHeuristicParser()
			var parser intent.Parser = heuristic
			if !queryOpts.NoAI {
				provider, err := ai.NewProvider(&cfg.AI, logger)
				if err != nil {
					logger.Debug("AI provider unavailable, using rule-based parsing", "error", err)
					provider = nil
				}
				parser = newParser(cfg, provider, heuristic, logger)
			}
			return runParse(cmd.Context(), cmd.OutOrStdout(), parser, request)
		}

		d, err := buildDeps(cfg)
		if err != nil {
			return err
		}
		return runQuery(cmd.Context(), cmd.OutOrStdout(), d.session, d.client.WorkItemURL, request, queryOpts, format)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVarP(&queryOpts.MaxItems, "max-items", "n", 0, "maximum work items to return (default from config)")
	queryCmd.Flags().BoolVar(&queryOpts.NoComments, "no-comments", false, "skip fetching discussion comments")
	queryCmd.Flags().BoolVar(&queryOpts.NoAI, "no-ai", false, "parse the request with built-in rules only")
	queryCmd.Flags().StringVarP(&queryOpts.Analyze, "analyze", "a", "", "analysis prompt to run over the results")
	queryCmd.Flags().BoolVar(&queryOpts.Summaries, "summaries", false, "write a short summary for each work item")
	queryCmd.Flags().BoolVar(&queryOpts.WIQLOnly, "wiql-only", false, "print the generated WIQL without running it")
	queryCmd.Flags().BoolVar(&queryOpts.ShowQuery, "show-query", false, "print the generated WIQL before the results")
}

// runParse prints the WIQL generated for request.
func runParse(ctx context.Context, w io.Writer, parser intent.Parser, request string) error {
	res, err := parser.Parse(ctx, request)
	if err != nil {
		return err
	}
	query, err := res.Query()
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Parsed by: %s\n", res.Source)
	}
	fmt.Fprintln(w, query)
	if res.Spec.AnalysisPrompt != "" {
		fmt.Fprintf(w, "\n-- analysis: %s\n", res.Spec.AnalysisPrompt)
	}
	return nil
}

// runQuery runs request through the session and renders the result.
func runQuery(ctx context.Context, w io.Writer, session *tools.Session, link func(int) string, request string, opts QueryOptions, format string) error {
	includeComments := !opts.NoComments
	useAI := !opts.NoAI

	res, err := session.QueryWorkItems(ctx, tools.QueryParams{
		Query:               request,
		MaxItems:            opts.MaxItems,
		IncludeComments:     &includeComments,
		UseAIParser:         &useAI,
		AnalysisPrompt:      opts.Analyze,
		IndividualSummaries: opts.Summaries,
	})
	if err != nil {
		return err
	}

	return render(w, format, res, func(w io.Writer) error {
		if opts.ShowQuery || verbose {
			fmt.Fprintf(w, "%s\n\n", res.WIQLQuery)
		}
		if res.Count == 0 {
			fmt.Fprintln(w, res.Summary)
			return nil
		}
		displayWorkItems(w, res.Items, res.IndividualSummaries, link)
		if res.Summary != "" {
			fmt.Fprintf(w, "\n%s\n", res.Summary)
		}
		return nil
	})
}

// displayWorkItems prints records as a table.
func displayWorkItems(w io.Writer, items []workitem.Record, summaries map[int]string, link func(int) string) {
	const titleWidth = 50

	fmt.Fprintf(w, "%-8s  %-12s  %-10s  %-20s  %-*s  %s\n",
		"ID", "TYPE", "STATE", "ASSIGNED", titleWidth, "TITLE", "COMMENTS")
	fprintRule(w, 120)

	for _, r := range items {
		assigned := r.AssignedTo
		if assigned == "" {
			assigned = "-"
		}
		comments := fmt.Sprintf("%d", r.CommentCount)
		if r.PartnerCommentCount > 0 {
			comments += fmt.Sprintf(" (%d ext)", r.PartnerCommentCount)
		}
		fmt.Fprintf(w, "%-8d  %-12s  %-10s  %-20s  %-*s  %s\n",
			r.ID,
			truncateCell(r.Type, 12),
			truncateCell(r.State, 10),
			truncateCell(assigned, 20),
			titleWidth, truncateCell(r.Title, titleWidth),
			comments,
		)
		if summary, ok := summaries[r.ID]; ok && summary != "" {
			fmt.Fprintf(w, "          %s\n", summary)
		}
		if link != nil && verbose {
			fmt.Fprintf(w, "          %s\n", link(r.ID))
		}
	}

	fmt.Fprintf(w, "\nTotal: %d work item(s)\n", len(items))
}
