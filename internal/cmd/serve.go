package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"github.com/spf13/cobra"
)

var serveOpts struct {
	addr     string
	interval time.Duration
	maxPeers int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run a UDP tracker",
	Long:  `run an in-memory BEP 15 UDP tracker, mainly for testing clients locally`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := tracker.NewServer(tracker.ServerConfig{
			Addr:     serveOpts.addr,
			Interval: serveOpts.interval,
			MaxPeers: serveOpts.maxPeers,
			Logger:   newLogger(),
		})
		if err != nil {
			return err
		}
		defer srv.Shutdown()

		err = srv.Start(cmd.Context())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", ":6969", "UDP address to listen on")
	f.DurationVar(&serveOpts.interval, "interval", 30*time.Minute, "announce interval sent to clients")
	f.IntVar(&serveOpts.maxPeers, "max-peers", 50, "largest peer list returned per announce")
}
