package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/bttrack/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   `bttrack`,
	Short: "talk to BitTorrent UDP trackers",
	Long: `bttrack announces to and scrapes BitTorrent UDP trackers (BEP 15),
inspects bencoded files and can run a small UDP tracker for local testing`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.NewLogger().Fatal(err)
	}
}

func newLogger() *logrus.Logger {
	log := logger.NewLogger()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}
