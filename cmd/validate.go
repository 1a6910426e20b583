package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/gtpstamp/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration, then print the effective settings
(defaults and environment overrides applied) as YAML.

Examples:
  gtpstamp validate -c /etc/gtpstamp/config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	data, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "VALID")
	_, err = out.Write(data)
	return err
}
