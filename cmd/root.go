// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/gtpstamp/internal/daemon"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gtpstamp",
	Short: "gtpstamp - GTP-U latency trailer injector",
	Long: `gtpstamp intercepts GTP-U traffic through NFQUEUE and appends a latency
trailer entry (node id + millisecond timestamp) to every flagged packet,
repairing the GTP, inner IPv4/UDP and outer IPv4/UDP headers on the way.

Packets that are not flagged GTP-U are accepted untouched.`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/gtpstamp/config.yml",
		"config file path (empty for defaults and environment only)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
