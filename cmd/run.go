package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/gtpstamp/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stamping daemon in the foreground",
	Long: `Attach to the configured NFQUEUE queues and stamp flagged GTP-U packets
until SIGTERM or SIGINT. SIGHUP reloads the log settings.

Traffic must be steered to the queues, for example:
  iptables -t raw -A PREROUTING -p udp --dport 2152 -j NFQUEUE --queue-num 0

Examples:
  gtpstamp run -c /etc/gtpstamp/config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(configFile)
		if err != nil {
			return err
		}
		if err := d.Start(); err != nil {
			return err
		}
		return d.Run()
	},
}
