package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
	"github.com/spf13/cobra"
)

var scrapeOpts struct {
	infoHashes []string
	timeout    time.Duration
	retries    int
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape tracker-url",
	Short: "fetch swarm statistics from a UDP tracker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		if len(scrapeOpts.infoHashes) == 0 || len(scrapeOpts.infoHashes) > protocol.MaxScrapeHashes {
			return fmt.Errorf("need between 1 and %d info hashes", protocol.MaxScrapeHashes)
		}
		hashes := make([]protocol.InfoHash, 0, len(scrapeOpts.infoHashes))
		for _, s := range scrapeOpts.infoHashes {
			h, err := parseInfoHash(s)
			if err != nil {
				return err
			}
			hashes = append(hashes, h)
		}

		tr, err := transport.NewUDPTransport(transport.Config{Logger: log})
		if err != nil {
			return err
		}
		defer tr.Close()

		cfg := tracker.DefaultConfig()
		cfg.BaseTimeout = scrapeOpts.timeout
		cfg.MaxRetries = scrapeOpts.retries
		client := tracker.NewClient(cfg, tr, nil, log)

		files, err := client.Scrape(cmd.Context(), args[0], hashes)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, f := range files {
			if i >= len(hashes) {
				break
			}
			fmt.Fprintf(w, "%s seeders %s completed %s leechers %s\n",
				hex.EncodeToString(hashes[i][:]),
				humanize.Comma(int64(f.Seeders)),
				humanize.Comma(int64(f.Completed)),
				humanize.Comma(int64(f.Leechers)))
		}
		return nil
	},
}

func init() {
	f := scrapeCmd.Flags()
	f.StringSliceVar(&scrapeOpts.infoHashes, "info-hash", nil, "info hash as 40 hex characters (repeatable)")
	f.DurationVar(&scrapeOpts.timeout, "timeout", 15*time.Second, "base retransmission timeout")
	f.IntVar(&scrapeOpts.retries, "retries", 8, "consecutive timeouts before giving up")
}
