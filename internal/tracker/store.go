package tracker

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
)

type peer struct {
	addr    netip.AddrPort
	seeding bool
	seen    time.Time
}

type swarm struct {
	peers     map[protocol.PeerID]*peer
	completed uint32
}

// Store is the server's in-memory view of every swarm it has seen.
// Peers that have not announced within the peer TTL are not returned.
type Store struct {
	mu      sync.Mutex
	swarms  map[protocol.InfoHash]*swarm
	peerTTL time.Duration
	now     func() time.Time
}

func NewStore(peerTTL time.Duration) *Store {
	return &Store{
		swarms:  make(map[protocol.InfoHash]*swarm),
		peerTTL: peerTTL,
		now:     time.Now,
	}
}

// Announce records one announce and reports whether the peer is new to the
// swarm. A stopped event removes the peer.
func (s *Store) Announce(hash protocol.InfoHash, id protocol.PeerID, addr netip.AddrPort, left int64, event protocol.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.swarms[hash]
	if !ok {
		sw = &swarm{peers: make(map[protocol.PeerID]*peer)}
		s.swarms[hash] = sw
	}

	if event == protocol.EventStopped {
		delete(sw.peers, id)
		return false
	}
	if event == protocol.EventCompleted {
		sw.completed++
	}

	p, exists := sw.peers[id]
	if !exists {
		p = &peer{}
		sw.peers[id] = p
	}
	p.addr = addr
	p.seeding = left == 0
	p.seen = s.now()
	return !exists
}

// Peers returns up to limit live peers of the swarm other than exclude.
func (s *Store) Peers(hash protocol.InfoHash, exclude protocol.PeerID, limit int) []netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.swarms[hash]
	if !ok || limit <= 0 {
		return nil
	}

	now := s.now()
	out := make([]netip.AddrPort, 0, min(limit, len(sw.peers)))
	for id, p := range sw.peers {
		if len(out) >= limit {
			break
		}
		if id == exclude || s.expired(p, now) {
			continue
		}
		out = append(out, p.addr)
	}
	return out
}

// Stats counts live seeders and leechers.
func (s *Store) Stats(hash protocol.InfoHash) protocol.ScrapeFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.swarms[hash]
	if !ok {
		return protocol.ScrapeFile{}
	}

	now := s.now()
	stats := protocol.ScrapeFile{Completed: sw.completed}
	for _, p := range sw.peers {
		if s.expired(p, now) {
			continue
		}
		if p.seeding {
			stats.Seeders++
		} else {
			stats.Leechers++
		}
	}
	return stats
}

// Prune drops expired peers and empty swarms.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for hash, sw := range s.swarms {
		for id, p := range sw.peers {
			if s.expired(p, now) {
				delete(sw.peers, id)
				removed++
			}
		}
		if len(sw.peers) == 0 && sw.completed == 0 {
			delete(s.swarms, hash)
		}
	}
	return removed
}

func (s *Store) expired(p *peer, now time.Time) bool {
	return s.peerTTL > 0 && now.Sub(p.seen) > s.peerTTL
}
