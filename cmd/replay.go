package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/gtpstamp/internal/config"
	"firestige.xyz/gtpstamp/internal/daemon"
	"firestige.xyz/gtpstamp/internal/log"
	"firestige.xyz/gtpstamp/internal/replay"
)

var (
	replayInput  string
	replayOutput string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Stamp the packets of a pcap file offline",
	Long: `Run every record of a pcap capture through the stamper and write the
result to another pcap file. Dropped records are left out.

Examples:
  gtpstamp replay -i in.pcap -o out.pcap
  gtpstamp replay -c config.yml -i in.pcap -o -     # write to stdout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runReplay(ctx, configFile, replayInput, replayOutput, cmd.ErrOrStderr())
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayInput, "input", "i", "", "input pcap file (required)")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "output pcap file, - for stdout (required)")
	_ = replayCmd.MarkFlagRequired("input")
	_ = replayCmd.MarkFlagRequired("output")
}

func runReplay(ctx context.Context, cfgPath, in, out string, report io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// stdout may carry the capture; keep log lines off it
	closer, err := log.InitWithConsole(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := daemon.NewStamper(cfg)
	if err != nil {
		return err
	}

	r, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer r.Close()

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	stats, err := replay.Run(ctx, r, w, st)
	if err != nil {
		return err
	}

	fmt.Fprintf(report, "packets=%d written=%d tunneled=%d flagged=%d stamped=%d malformed=%d dropped=%d non_ipv4=%d truncated=%d\n",
		stats.Packets, stats.Written, stats.Tunneled, stats.Flagged, stats.Stamped,
		stats.Malformed, stats.Dropped, stats.NonIPv4, stats.Truncated)
	return nil
}
