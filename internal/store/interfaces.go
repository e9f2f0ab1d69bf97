package store

import (
	"context"
	"net/netip"

	"github.com/rudransh-shrivastava/bttrack/internal/db"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
)

// AnnounceRepository records announce attempts.
type AnnounceRepository interface {
	SaveAnnounce(ctx context.Context, trackerURL string, infoHash protocol.InfoHash, event protocol.Event, res *tracker.AnnounceResult, announceErr error) (db.Announce, error)
	ListAnnounces(ctx context.Context, infoHash protocol.InfoHash, limit int) ([]db.Announce, error)
	GetLatestAnnounce(ctx context.Context, infoHash protocol.InfoHash) (db.Announce, error)
}

// PeerRepository reads peers learned from announces.
type PeerRepository interface {
	GetPeersByInfoHash(ctx context.Context, infoHash protocol.InfoHash) ([]netip.AddrPort, error)
}

var (
	_ AnnounceRepository = (*AnnounceStore)(nil)
	_ PeerRepository     = (*PeerStore)(nil)
)
