package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/bttrack/internal/db"
	"github.com/rudransh-shrivastava/bttrack/internal/store"
	"github.com/spf13/cobra"
)

var historyOpts struct {
	dbPath   string
	infoHash string
	limit    int
	peers    bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list recorded announces for a torrent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := parseInfoHash(historyOpts.infoHash)
		if err != nil {
			return err
		}

		gdb, err := db.Open(historyOpts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		announces, err := store.NewAnnounceStore(gdb).ListAnnounces(cmd.Context(), h, historyOpts.limit)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(announces) == 0 {
			fmt.Fprintln(w, "no announces recorded")
			return nil
		}
		for _, a := range announces {
			when := humanize.Time(time.Unix(a.CreatedAt, 0))
			if a.Error != "" {
				fmt.Fprintf(w, "%-16s %-45s %-9s failed: %s\n", when, a.TrackerURL, a.Event, a.Error)
				continue
			}
			fmt.Fprintf(w, "%-16s %-45s %-9s seeders %-6d leechers %-6d peers %d\n",
				when, a.TrackerURL, a.Event, a.Seeders, a.Leechers, len(a.Peers))
		}

		if historyOpts.peers {
			peers, err := store.NewPeerStore(gdb).GetPeersByInfoHash(cmd.Context(), h)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s known peers\n", humanize.Comma(int64(len(peers))))
			for _, p := range peers {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
		return nil
	},
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyOpts.dbPath, "db", "bttrack.sqlite3", "sqlite database written by announce --db")
	f.StringVar(&historyOpts.infoHash, "info-hash", "", "info hash as 40 hex characters")
	f.IntVar(&historyOpts.limit, "limit", 20, "show at most this many announces (0 for all)")
	f.BoolVar(&historyOpts.peers, "peers", false, "list every peer recorded for the torrent")
}
