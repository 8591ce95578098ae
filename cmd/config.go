package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"thoreinstein.com/wit/pkg/config"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Long: `Print the configuration after merging defaults, the config file, a local
.wit.toml and WIT_* environment variables. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runConfigShow(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(w io.Writer, cfg *config.Config, source string) error {
	shown := *cfg
	if shown.ADO.Token != "" {
		shown.ADO.Token = redacted
	}
	if shown.AI.APIKey != "" {
		shown.AI.APIKey = redacted
	}

	data, err := toml.Marshal(shown)
	if err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}

	if source != "" {
		fmt.Fprintf(w, "# source: %s\n", source)
	}
	_, err = io.WriteString(w, strings.TrimRight(string(data), "\n")+"\n")
	return err
}
