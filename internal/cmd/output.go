package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func reportsStruct(infoHash protocol.InfoHash, event protocol.Event, reports []tracker.AnnounceReport) (*structpb.Struct, error) {
	trackers := make([]any, 0, len(reports))
	for _, r := range reports {
		entry := map[string]any{"url": r.TrackerURL}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		} else {
			peers := make([]any, 0, len(r.Result.Peers))
			for _, p := range r.Result.Peers {
				peers = append(peers, p.String())
			}
			entry["interval_seconds"] = int64(r.Result.Interval.Seconds())
			entry["seeders"] = int64(r.Result.Seeders)
			entry["leechers"] = int64(r.Result.Leechers)
			entry["peers"] = peers
		}
		trackers = append(trackers, entry)
	}

	return structpb.NewStruct(map[string]any{
		"info_hash": hex.EncodeToString(infoHash[:]),
		"event":     event.String(),
		"trackers":  trackers,
	})
}

func writeJSON(w io.Writer, s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// writeReports prints one line per tracker followed by the distinct peers.
func writeReports(w io.Writer, reports []tracker.AnnounceReport, showPeers bool) {
	seen := make(map[netip.AddrPort]bool)
	var peers []netip.AddrPort

	for _, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(w, "%-45s failed: %v\n", r.TrackerURL, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-45s seeders %-6s leechers %-6s peers %-4d interval %s\n",
			r.TrackerURL,
			humanize.Comma(int64(r.Result.Seeders)),
			humanize.Comma(int64(r.Result.Leechers)),
			len(r.Result.Peers),
			r.Result.Interval)

		for _, p := range r.Result.Peers {
			if !seen[p] {
				seen[p] = true
				peers = append(peers, p)
			}
		}
	}

	fmt.Fprintf(w, "%s distinct peers\n", humanize.Comma(int64(len(peers))))
	if showPeers {
		for _, p := range peers {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}
