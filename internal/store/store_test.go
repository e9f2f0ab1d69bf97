package store_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/db"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/store"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
)

func setupTestDB(t *testing.T) (*store.AnnounceStore, *store.PeerStore) {
	t.Helper()
	gdb, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return store.NewAnnounceStore(gdb), store.NewPeerStore(gdb)
}

var testHash = protocol.InfoHash{0xab, 0xcd}

func testResult(peers ...string) *tracker.AnnounceResult {
	res := &tracker.AnnounceResult{Interval: 30 * time.Minute, Leechers: 2, Seeders: 5}
	for _, p := range peers {
		res.Peers = append(res.Peers, netip.MustParseAddrPort(p))
	}
	return res
}

func TestAnnounceStore_SaveAnnounce(t *testing.T) {
	as, _ := setupTestDB(t)
	ctx := context.Background()

	a, err := as.SaveAnnounce(ctx, "udp://t:1", testHash, protocol.EventStarted, testResult("10.0.0.1:6881"), nil)
	if err != nil {
		t.Fatalf("SaveAnnounce failed: %v", err)
	}
	if a.ID == 0 {
		t.Error("expected an assigned id")
	}
	if a.InfoHash != "abcd000000000000000000000000000000000000" {
		t.Errorf("unexpected info hash key %q", a.InfoHash)
	}
	if a.Interval != 1800 || a.Seeders != 5 || a.Leechers != 2 {
		t.Errorf("unexpected counters %+v", a)
	}
	if a.Event != "started" {
		t.Errorf("expected event 'started', got %q", a.Event)
	}
	if len(a.Peers) != 1 || a.Peers[0].AnnounceID != a.ID {
		t.Errorf("expected 1 linked peer, got %+v", a.Peers)
	}
}

func TestAnnounceStore_SaveFailure(t *testing.T) {
	as, _ := setupTestDB(t)
	ctx := context.Background()

	a, err := as.SaveAnnounce(ctx, "udp://t:1", testHash, protocol.EventNone, nil, errors.New("max retries exceeded"))
	if err != nil {
		t.Fatalf("SaveAnnounce failed: %v", err)
	}
	if a.Error != "max retries exceeded" || len(a.Peers) != 0 {
		t.Errorf("expected stored error and no peers, got %+v", a)
	}

	if _, err := as.GetLatestAnnounce(ctx, testHash); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound when only failures exist, got %v", err)
	}
}

func TestAnnounceStore_ListAnnounces(t *testing.T) {
	as, _ := setupTestDB(t)
	ctx := context.Background()

	for _, u := range []string{"udp://a:1", "udp://b:2", "udp://c:3"} {
		if _, err := as.SaveAnnounce(ctx, u, testHash, protocol.EventNone, testResult(), nil); err != nil {
			t.Fatalf("SaveAnnounce failed: %v", err)
		}
	}
	_, _ = as.SaveAnnounce(ctx, "udp://a:1", protocol.InfoHash{0x01}, protocol.EventNone, testResult(), nil)

	all, err := as.ListAnnounces(ctx, testHash, 0)
	if err != nil {
		t.Fatalf("ListAnnounces failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 announces, got %d", len(all))
	}
	if all[0].TrackerURL != "udp://c:3" {
		t.Errorf("expected newest first, got %q", all[0].TrackerURL)
	}

	limited, err := as.ListAnnounces(ctx, testHash, 2)
	if err != nil {
		t.Fatalf("ListAnnounces failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 announces, got %d", len(limited))
	}
}

func TestAnnounceStore_GetLatestAnnounce(t *testing.T) {
	as, _ := setupTestDB(t)
	ctx := context.Background()

	_, _ = as.SaveAnnounce(ctx, "udp://a:1", testHash, protocol.EventNone, testResult("10.0.0.1:1"), nil)
	_, _ = as.SaveAnnounce(ctx, "udp://b:2", testHash, protocol.EventNone, testResult("10.0.0.2:2", "10.0.0.3:3"), nil)
	_, _ = as.SaveAnnounce(ctx, "udp://c:3", testHash, protocol.EventNone, nil, errors.New("timeout"))

	a, err := as.GetLatestAnnounce(ctx, testHash)
	if err != nil {
		t.Fatalf("GetLatestAnnounce failed: %v", err)
	}
	if a.TrackerURL != "udp://b:2" {
		t.Errorf("expected latest successful announce from b, got %q", a.TrackerURL)
	}
	if len(a.Peers) != 2 {
		t.Errorf("expected 2 preloaded peers, got %d", len(a.Peers))
	}
}

func TestPeerStore_GetPeersByInfoHash(t *testing.T) {
	as, ps := setupTestDB(t)
	ctx := context.Background()

	_, _ = as.SaveAnnounce(ctx, "udp://a:1", testHash, protocol.EventNone, testResult("10.0.0.1:1", "10.0.0.2:2"), nil)
	_, _ = as.SaveAnnounce(ctx, "udp://b:2", testHash, protocol.EventNone, testResult("10.0.0.2:2", "10.0.0.3:3"), nil)
	_, _ = as.SaveAnnounce(ctx, "udp://b:2", protocol.InfoHash{0x09}, protocol.EventNone, testResult("10.0.0.9:9"), nil)

	peers, err := ps.GetPeersByInfoHash(ctx, testHash)
	if err != nil {
		t.Fatalf("GetPeersByInfoHash failed: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("expected 3 distinct peers, got %v", peers)
	}
	if peers[0] != netip.MustParseAddrPort("10.0.0.1:1") {
		t.Errorf("expected insertion order, got %v", peers)
	}
}

func TestPeerStore_GetPeersByInfoHash_Empty(t *testing.T) {
	_, ps := setupTestDB(t)

	peers, err := ps.GetPeersByInfoHash(context.Background(), testHash)
	if err != nil {
		t.Fatalf("GetPeersByInfoHash failed: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("expected no peers, got %v", peers)
	}
}
