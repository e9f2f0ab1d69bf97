package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/logger"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const testInfoHash = "0123456789abcdef0123456789abcdef01234567"

func TestParseInfoHash(t *testing.T) {
	h, err := parseInfoHash(testInfoHash)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), h[0])
	assert.Equal(t, byte(0x67), h[19])

	for _, bad := range []string{"", "zz", "0123", testInfoHash + "00"} {
		_, err := parseInfoHash(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParsePeerID(t *testing.T) {
	id, err := parsePeerID("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(id[:]), peerIDPrefix))

	other, err := parsePeerID("")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	id, err = parsePeerID("-qB4650-abcdefghijkl")
	require.NoError(t, err)
	assert.Equal(t, "-qB4650-abcdefghijkl", string(id[:]))

	_, err = parsePeerID("short")
	assert.Error(t, err)
}

func TestMergeTrackers(t *testing.T) {
	got := mergeTrackers(
		[]string{"udp://a:1/announce", "udp://b:2/announce", "udp://a:1/announce"},
		[]string{"udp://b:2/announce", " udp://c:3/announce ", ""},
	)
	assert.Equal(t, []string{"udp://a:1/announce", "udp://b:2/announce", "udp://c:3/announce"}, got)
	assert.Empty(t, mergeTrackers(nil, nil))
}

func TestReportsStruct(t *testing.T) {
	h, _ := parseInfoHash(testInfoHash)
	reports := []tracker.AnnounceReport{
		{
			TrackerURL: "udp://a:1",
			Result: &tracker.AnnounceResult{
				Interval: 30 * time.Minute,
				Seeders:  4,
				Leechers: 2,
				Peers:    []netip.AddrPort{netip.MustParseAddrPort("10.0.0.1:6881")},
			},
		},
		{TrackerURL: "udp://b:2", Err: errors.New("max retries exceeded")},
	}

	s, err := reportsStruct(h, protocol.EventStarted, reports)
	require.NoError(t, err)

	m := s.AsMap()
	assert.Equal(t, testInfoHash, m["info_hash"])
	assert.Equal(t, "started", m["event"])

	trackers := m["trackers"].([]any)
	require.Len(t, trackers, 2)
	first := trackers[0].(map[string]any)
	assert.Equal(t, float64(1800), first["interval_seconds"])
	assert.Equal(t, float64(4), first["seeders"])
	assert.Equal(t, []any{"10.0.0.1:6881"}, first["peers"])
	assert.Equal(t, "max retries exceeded", trackers[1].(map[string]any)["error"])
}

func TestWriteReports(t *testing.T) {
	p := netip.MustParseAddrPort("10.0.0.1:6881")
	reports := []tracker.AnnounceReport{
		{TrackerURL: "udp://a:1", Result: &tracker.AnnounceResult{Seeders: 1200, Peers: []netip.AddrPort{p}}},
		{TrackerURL: "udp://b:2", Result: &tracker.AnnounceResult{Peers: []netip.AddrPort{p}}},
		{TrackerURL: "udp://c:3", Err: errors.New("boom")},
	}

	var buf bytes.Buffer
	writeReports(&buf, reports, true)
	out := buf.String()

	assert.Contains(t, out, "seeders 1,200")
	assert.Contains(t, out, "failed: boom")
	assert.Contains(t, out, "1 distinct peers")
	assert.Contains(t, out, "  10.0.0.1:6881")
}

func TestAnnounceAndHistoryCommands(t *testing.T) {
	srv, err := tracker.NewServer(tracker.ServerConfig{Addr: "127.0.0.1:0", Logger: logger.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go func() { _ = srv.Start(ctx) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	url := fmt.Sprintf("udp://127.0.0.1:%d/announce", srv.Port())
	dbPath := filepath.Join(t.TempDir(), "history.sqlite3")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"announce", url, url, "--info-hash", testInfoHash, "--json", "--db", dbPath, "--timeout", "500ms", "--left", "100"})
	require.NoError(t, rootCmd.ExecuteContext(ctx))

	var s structpb.Struct
	require.NoError(t, protojson.Unmarshal(out.Bytes(), &s))
	trackers := s.AsMap()["trackers"].([]any)
	require.Len(t, trackers, 1)
	entry := trackers[0].(map[string]any)
	assert.Equal(t, url, entry["url"])
	assert.Equal(t, float64(1), entry["leechers"])
	assert.Nil(t, entry["error"])

	out.Reset()
	rootCmd.SetArgs([]string{"history", "--db", dbPath, "--info-hash", testInfoHash})
	require.NoError(t, rootCmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), url)
	assert.Contains(t, out.String(), "leechers 1")
}

func TestInspectCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value.bencode")
	require.NoError(t, os.WriteFile(path, []byte("d3:agei42e4:name5:alicee"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"inspect", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "42")
	assert.Contains(t, out.String(), `"alice"`)
}
