package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"thoreinstein.com/wit/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the work item tools over stdio",
	Long: `Read JSON-lines requests on stdin and write one JSON response per line on
stdout. Supported methods are initialize, list_tools and invoke_tool.

Logs go to stderr so stdout carries only protocol output. The server exits
when stdin is closed or on SIGINT/SIGTERM.

Example:
  echo '{"id":1,"method":"invoke_tool","params":{"name":"explain_field","arguments":{"field":"priority"}}}' | wit serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := buildDeps(cfg)
		if err != nil {
			return err
		}

		srv := server.New(d.session, server.Target{
			Organization: cfg.ADO.Organization,
			Project:      cfg.ADO.Project,
		}, d.logger)

		return runServe(cmd.Context(), srv, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, srv *server.Server, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := srv.Serve(ctx, in, out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
