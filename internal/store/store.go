// Package store persists announce history in sqlite.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"net/netip"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/db"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/tracker"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("no announce recorded")

func hashKey(h protocol.InfoHash) string {
	return hex.EncodeToString(h[:])
}

type AnnounceStore struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewAnnounceStore(gdb *gorm.DB) *AnnounceStore {
	return &AnnounceStore{DB: gdb, now: time.Now}
}

// SaveAnnounce stores one attempt. A failed attempt keeps its error text and
// no peers.
func (as *AnnounceStore) SaveAnnounce(ctx context.Context, trackerURL string, infoHash protocol.InfoHash, event protocol.Event, res *tracker.AnnounceResult, announceErr error) (db.Announce, error) {
	a := db.Announce{
		TrackerURL: trackerURL,
		InfoHash:   hashKey(infoHash),
		Event:      event.String(),
		CreatedAt:  as.now().Unix(),
	}

	if announceErr != nil {
		a.Error = announceErr.Error()
	} else if res != nil {
		a.Interval = int64(res.Interval / time.Second)
		a.Leechers = res.Leechers
		a.Seeders = res.Seeders
		a.Peers = make([]db.Peer, 0, len(res.Peers))
		for _, p := range res.Peers {
			a.Peers = append(a.Peers, db.Peer{IPAddress: p.Addr().String(), Port: int(p.Port())})
		}
	}

	if err := as.DB.WithContext(ctx).Create(&a).Error; err != nil {
		return db.Announce{}, err
	}
	return a, nil
}

// ListAnnounces returns the newest attempts first. A limit of 0 or less
// returns all of them.
func (as *AnnounceStore) ListAnnounces(ctx context.Context, infoHash protocol.InfoHash, limit int) ([]db.Announce, error) {
	q := as.DB.WithContext(ctx).
		Preload("Peers").
		Where("info_hash = ?", hashKey(infoHash)).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	announces := []db.Announce{}
	if err := q.Find(&announces).Error; err != nil {
		return nil, err
	}
	return announces, nil
}

// GetLatestAnnounce returns the newest successful attempt.
func (as *AnnounceStore) GetLatestAnnounce(ctx context.Context, infoHash protocol.InfoHash) (db.Announce, error) {
	var a db.Announce
	err := as.DB.WithContext(ctx).
		Preload("Peers").
		Where("info_hash = ? AND error = ?", hashKey(infoHash), "").
		Order("created_at DESC, id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Announce{}, ErrNotFound
	}
	return a, err
}

type PeerStore struct {
	DB *gorm.DB
}

func NewPeerStore(gdb *gorm.DB) *PeerStore {
	return &PeerStore{DB: gdb}
}

// GetPeersByInfoHash returns every distinct peer any tracker has reported
// for the torrent.
func (ps *PeerStore) GetPeersByInfoHash(ctx context.Context, infoHash protocol.InfoHash) ([]netip.AddrPort, error) {
	peers := []db.Peer{}
	err := ps.DB.WithContext(ctx).
		Joins("JOIN announces ON announces.id = peers.announce_id").
		Where("announces.info_hash = ?", hashKey(infoHash)).
		Order("peers.id").
		Find(&peers).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[netip.AddrPort]bool, len(peers))
	out := make([]netip.AddrPort, 0, len(peers))
	for _, p := range peers {
		addr, err := netip.ParseAddr(p.IPAddress)
		if err != nil {
			continue
		}
		ap := netip.AddrPortFrom(addr, uint16(p.Port))
		if seen[ap] {
			continue
		}
		seen[ap] = true
		out = append(out, ap)
	}
	return out, nil
}
