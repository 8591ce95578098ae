package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"thoreinstein.com/wit/pkg/ai"
	"thoreinstein.com/wit/pkg/auth"
	"thoreinstein.com/wit/pkg/bootstrap"
	"thoreinstein.com/wit/pkg/config"
	witerrors "thoreinstein.com/wit/pkg/errors"
)

// Check is one doctor result.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and the AI provider",
	Long: `Run a series of checks and report which parts of the setup work:

  config    required settings are present and valid
  token     a token can be obtained for Azure DevOps
  ai        the configured LLM answers a short prompt`,
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

		logger := bootstrap.NewLogger(verbose)
		var tokens oauth2.TokenSource
		if ts, err := auth.NewTokenSource(cfg, logger); err == nil {
			tokens = ts
		}
		var provider ai.Provider
		if p, err := ai.NewProvider(&cfg.AI, logger); err == nil {
			provider = p
		}

		checks := runDoctor(cmd.Context(), cfg, tokens, provider)
		if err := render(cmd.OutOrStdout(), format, checks, func(w io.Writer) error {
			displayChecks(w, checks)
			return nil
		}); err != nil {
			return err
		}
		for _, c := range checks {
			if !c.OK {
				return errors.New("one or more checks failed")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(ctx context.Context, cfg *config.Config, tokens oauth2.TokenSource, provider ai.Provider) []Check {
	checks := make([]Check, 0, 3)

	if err := cfg.Validate(); err != nil {
		checks = append(checks, Check{Name: "config", Detail: witerrors.FormatUserError(err)})
	} else {
		checks = append(checks, Check{Name: "config", OK: true,
			Detail: fmt.Sprintf("%s/%s (api %s)", cfg.ADO.Organization, cfg.ADO.Project, cfg.ADO.APIVersion)})
	}

	switch {
	case tokens == nil:
		checks = append(checks, Check{Name: "token", Detail: "no token source for auth method " + cfg.Auth.Method})
	default:
		tok, err := tokens.Token()
		switch {
		case err != nil:
			checks = append(checks, Check{Name: "token", Detail: witerrors.FormatUserError(err)})
		case !tok.Expiry.IsZero():
			checks = append(checks, Check{Name: "token", OK: true,
				Detail: "expires in " + time.Until(tok.Expiry).Round(time.Minute).String()})
		default:
			checks = append(checks, Check{Name: "token", OK: true, Detail: "static token"})
		}
	}

	switch {
	case provider == nil:
		checks = append(checks, Check{Name: "ai", Detail: "no AI provider configured; rule-based parsing only"})
	default:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := ai.Ping(ctx, provider); err != nil {
			checks = append(checks, Check{Name: "ai", Detail: witerrors.FormatUserError(err)})
		} else {
			checks = append(checks, Check{Name: "ai", OK: true, Detail: provider.Name() + " responded"})
		}
	}

	return checks
}

func displayChecks(w io.Writer, checks []Check) {
	for _, c := range checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%-4s  %-7s %s\n", mark, c.Name, c.Detail)
	}
}
