package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"firestige.xyz/gtpstamp/internal/daemon"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gtpstamp %s (%s %s/%s)\n",
			daemon.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
