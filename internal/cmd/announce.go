package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/bttrack/internal/db"
	"github.com/rudransh-shrivastava/bttrack/internal/metainfo"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/store"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var errNoTrackers = errors.New("no udp trackers to announce to")

var announceOpts struct {
	infoHash   string
	torrent    string
	peerID     string
	event      string
	port       uint16
	numWant    int32
	left       int64
	downloaded int64
	uploaded   int64
	timeout    time.Duration
	retries    int
	json       bool
	peers      bool
	dbPath     string
}

var announceCmd = &cobra.Command{
	Use:   "announce [tracker-url...]",
	Short: "announce to one or more UDP trackers",
	Long: `announce a torrent to UDP trackers concurrently over one socket.
Trackers come from the arguments and, with --torrent, from the torrent's announce list.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAnnounce,
}

func init() {
	f := announceCmd.Flags()
	f.StringVar(&announceOpts.infoHash, "info-hash", "", "info hash as 40 hex characters")
	f.StringVarP(&announceOpts.torrent, "torrent", "t", "", "read info hash and trackers from a .torrent file")
	f.StringVar(&announceOpts.peerID, "peer-id", "", "20 byte peer id (random if empty)")
	f.StringVar(&announceOpts.event, "event", "started", "none, started, completed or stopped")
	f.Uint16Var(&announceOpts.port, "port", 6881, "port peers should connect to")
	f.Int32Var(&announceOpts.numWant, "num-want", protocol.DefaultNumWant, "number of peers wanted (-1 for tracker default)")
	f.Int64Var(&announceOpts.left, "left", -1, "bytes left to download (-1 for the torrent's size)")
	f.Int64Var(&announceOpts.downloaded, "downloaded", 0, "bytes downloaded")
	f.Int64Var(&announceOpts.uploaded, "uploaded", 0, "bytes uploaded")
	f.DurationVar(&announceOpts.timeout, "timeout", 15*time.Second, "base retransmission timeout, doubled on each retry")
	f.IntVar(&announceOpts.retries, "retries", 8, "consecutive timeouts before giving up on a tracker")
	f.BoolVar(&announceOpts.json, "json", false, "print results as JSON")
	f.BoolVar(&announceOpts.peers, "peers", false, "list every peer received")
	f.StringVar(&announceOpts.dbPath, "db", "", "record results in this sqlite database")
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	log := newLogger()

	req := tracker.AnnounceRequest{
		Downloaded: announceOpts.downloaded,
		Uploaded:   announceOpts.uploaded,
		Left:       announceOpts.left,
	}
	trackers := mergeTrackers(args)

	if announceOpts.torrent != "" {
		mi, err := metainfo.Load(announceOpts.torrent)
		if err != nil {
			return err
		}
		req.InfoHash = mi.InfoHash
		trackers = mergeTrackers(trackers, mi.UDPTrackers())
		if req.Left < 0 {
			req.Left = mi.TotalLength()
		}
		log.WithField("name", mi.Info.Name).Debug("Loaded torrent")
	} else {
		h, err := parseInfoHash(announceOpts.infoHash)
		if err != nil {
			return err
		}
		req.InfoHash = h
	}
	if req.Left < 0 {
		req.Left = 0
	}
	if len(trackers) == 0 {
		return errNoTrackers
	}

	var err error
	if req.PeerID, err = parsePeerID(announceOpts.peerID); err != nil {
		return err
	}
	if req.Event, err = protocol.ParseEvent(announceOpts.event); err != nil {
		return err
	}

	tr, err := transport.NewUDPTransport(transport.Config{Logger: log})
	if err != nil {
		return err
	}
	defer tr.Close()

	cfg := tracker.DefaultConfig()
	cfg.BaseTimeout = announceOpts.timeout
	cfg.MaxRetries = announceOpts.retries
	cfg.Port = announceOpts.port
	cfg.NumWant = announceOpts.numWant
	client := tracker.NewClient(cfg, tr, nil, log)

	log.WithField("left", humanize.IBytes(uint64(req.Left))).
		WithField("trackers", len(trackers)).
		Info("Announcing")

	bar := progressbar.NewOptions(len(trackers),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("announcing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var mu sync.Mutex
	reports := client.AnnounceAll(cmd.Context(), trackers, req, func(tracker.AnnounceReport) {
		mu.Lock()
		_ = bar.Add(1)
		mu.Unlock()
	})
	_ = bar.Finish()

	if announceOpts.dbPath != "" {
		if err := saveReports(cmd, announceOpts.dbPath, req, reports); err != nil {
			return err
		}
	}

	if announceOpts.json {
		s, err := reportsStruct(req.InfoHash, req.Event, reports)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), s); err != nil {
			return err
		}
	} else {
		writeReports(cmd.OutOrStdout(), reports, announceOpts.peers)
	}

	for _, r := range reports {
		if r.Err == nil {
			return nil
		}
	}
	return fmt.Errorf("all %d trackers failed", len(reports))
}

func saveReports(cmd *cobra.Command, path string, req tracker.AnnounceRequest, reports []tracker.AnnounceReport) error {
	gdb, err := db.Open(path)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	announces := store.NewAnnounceStore(gdb)
	for _, r := range reports {
		if _, err := announces.SaveAnnounce(cmd.Context(), r.TrackerURL, req.InfoHash, req.Event, r.Result, r.Err); err != nil {
			return fmt.Errorf("saving announce for %s: %w", r.TrackerURL, err)
		}
	}
	return nil
}
