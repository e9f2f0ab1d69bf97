package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rudransh-shrivastava/bttrack/internal/bencode"
	"github.com/rudransh-shrivastava/bttrack/internal/metainfo"
	"github.com/spf13/cobra"
)

var inspectTorrent bool

var inspectCmd = &cobra.Command{
	Use:   "inspect path/to/file",
	Short: "print a bencoded file",
	Long:  `print the value tree of any bencoded file, or a summary of a .torrent with --torrent`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectTorrent {
			mi, err := metainfo.Load(args[0])
			if err != nil {
				return err
			}
			writeMetainfo(cmd.OutOrStdout(), mi)
			return nil
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		v, err := bencode.Unmarshal(data)
		if err != nil {
			return err
		}
		return bencode.Fprint(cmd.OutOrStdout(), v)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectTorrent, "torrent", false, "summarise the file as torrent metainfo")
}

func writeMetainfo(w io.Writer, mi *metainfo.MetaInfo) {
	fmt.Fprintf(w, "name:         %s\n", mi.Info.Name)
	fmt.Fprintf(w, "info hash:    %s\n", hex.EncodeToString(mi.InfoHash[:]))
	fmt.Fprintf(w, "size:         %s (%s bytes)\n", humanize.IBytes(uint64(mi.TotalLength())), humanize.Comma(mi.TotalLength()))
	fmt.Fprintf(w, "pieces:       %d x %s\n", mi.Info.PieceCount, humanize.IBytes(uint64(mi.Info.PieceLength)))
	if len(mi.Info.Files) > 0 {
		fmt.Fprintf(w, "files:        %d\n", len(mi.Info.Files))
		for _, f := range mi.Info.Files {
			fmt.Fprintf(w, "  %s (%s)\n", strings.Join(f.Path, "/"), humanize.IBytes(uint64(f.Length)))
		}
	}
	if mi.Info.Private {
		fmt.Fprintln(w, "private:      yes")
	}
	if mi.CreationDate > 0 {
		fmt.Fprintf(w, "created:      %s\n", time.Unix(mi.CreationDate, 0).UTC().Format(time.RFC3339))
	}
	if mi.CreatedBy != "" {
		fmt.Fprintf(w, "created by:   %s\n", mi.CreatedBy)
	}
	if mi.Comment != "" {
		fmt.Fprintf(w, "comment:      %s\n", mi.Comment)
	}
	fmt.Fprintln(w, "trackers:")
	for _, u := range mi.Trackers() {
		fmt.Fprintf(w, "  %s\n", u)
	}
}
