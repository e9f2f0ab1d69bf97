package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
	"github.com/sirupsen/logrus"
)

const (
	defaultAnnounceInterval = 30 * time.Minute
	defaultMaxPeers         = 50
	// Connection ids stay valid on the server a little longer than clients
	// use them.
	defaultServerConnectionTTL = 2 * time.Minute
)

var errInvalidConnectionID = errors.New("invalid connection id")

type ServerConfig struct {
	Addr            string
	Interval        time.Duration
	ConnectionIDTTL time.Duration
	MaxPeers        int
	Logger          *logrus.Logger
	Rand            RandomSource
}

type connection struct {
	addr   netip.Addr
	issued time.Time
}

// Server is a BEP 15 UDP tracker backed by an in-memory Store.
type Server struct {
	config    ServerConfig
	logger    *logrus.Entry
	transport *transport.UDPTransport
	codec     *protocol.Codec
	store     *Store
	now       func() time.Time

	mu          sync.Mutex
	rnd         RandomSource
	connections map[uint64]connection
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultAnnounceInterval
	}
	if cfg.ConnectionIDTTL <= 0 {
		cfg.ConnectionIDTTL = defaultServerConnectionTTL
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaultMaxPeers
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	tr, err := transport.NewUDPTransport(transport.Config{Addr: cfg.Addr, Logger: log})
	if err != nil {
		return nil, err
	}

	return &Server{
		config:      cfg,
		logger:      log.WithField("component", "server"),
		transport:   tr,
		codec:       protocol.NewCodec(),
		store:       NewStore(2 * cfg.Interval),
		now:         time.Now,
		rnd:         rnd,
		connections: make(map[uint64]connection),
	}, nil
}

func (s *Server) Addr() string {
	return s.transport.LocalAddr().String()
}

// Port is the bound UDP port.
func (s *Server) Port() int {
	return s.transport.LocalAddr().Port
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down tracker server")
	return s.transport.Close()
}

// Start serves requests until ctx is done or the socket is closed.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.Addr()).Info("Tracker server started")

	prune := time.NewTicker(s.config.ConnectionIDTTL)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-prune.C:
			s.prune()
		case dg, ok := <-s.transport.Recv():
			if !ok {
				return transport.ErrClosed
			}
			s.handleDatagram(dg)
		}
	}
}

func (s *Server) handleDatagram(dg transport.Datagram) {
	log := s.logger.WithField("peer", dg.From.String())

	msg, err := s.codec.DecodeRequest(dg.Data)
	if err != nil {
		log.WithError(err).Debug("Dropping malformed request")
		return
	}

	var reply protocol.Message
	switch m := msg.(type) {
	case *protocol.ConnectRequest:
		reply = s.handleConnect(m, dg.From)
	case *protocol.AnnounceRequest:
		reply = s.handleAnnounce(m, dg.From)
	case *protocol.ScrapeRequest:
		reply = s.handleScrape(m, dg.From)
	default:
		log.WithField("action", msg.Action().String()).Warn("Unhandled request")
		return
	}

	payload, err := s.codec.Encode(reply)
	if err != nil {
		log.WithError(err).Error("Failed to encode reply")
		return
	}
	if _, err := s.transport.SendTo(payload, dg.From); err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}

func (s *Server) handleConnect(m *protocol.ConnectRequest, from *net.UDPAddr) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id uint64
	for {
		id = uint64(s.rnd.Uint32())<<32 | uint64(s.rnd.Uint32())
		if _, taken := s.connections[id]; !taken && id != protocol.ProtocolID {
			break
		}
	}
	s.connections[id] = connection{addr: addrOf(from), issued: s.now()}

	s.logger.WithFields(logrus.Fields{
		"peer":          from.String(),
		"connection_id": fmt.Sprintf("%016x", id),
	}).Debug("Issued connection id")

	return &protocol.ConnectResponse{TransactionID: m.TransactionID, ConnectionID: id}
}

func (s *Server) validConnection(id uint64, from *net.UDPAddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[id]
	if !ok {
		return false
	}
	if s.now().Sub(c.issued) > s.config.ConnectionIDTTL {
		delete(s.connections, id)
		return false
	}
	return c.addr == addrOf(from)
}

func (s *Server) handleAnnounce(m *protocol.AnnounceRequest, from *net.UDPAddr) protocol.Message {
	if !s.validConnection(m.ConnectionID, from) {
		return &protocol.ErrorResponse{TransactionID: m.TransactionID, Message: errInvalidConnectionID.Error()}
	}

	ip := addrOf(from)
	if m.IP != 0 {
		ip = netip.AddrFrom4([4]byte{byte(m.IP >> 24), byte(m.IP >> 16), byte(m.IP >> 8), byte(m.IP)})
	}

	log := s.logger.WithFields(logrus.Fields{
		"peer":      from.String(),
		"info_hash": fmt.Sprintf("%x", m.InfoHash[:]),
		"event":     m.Event.String(),
	})

	if ip.Is4() {
		if s.store.Announce(m.InfoHash, m.PeerID, netip.AddrPortFrom(ip, m.Port), m.Left, m.Event) {
			log.Info("Peer joined swarm")
		}
	} else {
		log.Debug("Not listing non-IPv4 peer")
	}

	limit := s.config.MaxPeers
	if m.NumWant >= 0 && int(m.NumWant) < limit {
		limit = int(m.NumWant)
	}
	stats := s.store.Stats(m.InfoHash)

	return &protocol.AnnounceResponse{
		TransactionID: m.TransactionID,
		Interval:      uint32(s.config.Interval / time.Second),
		Leechers:      stats.Leechers,
		Seeders:       stats.Seeders,
		Peers:         s.store.Peers(m.InfoHash, m.PeerID, limit),
	}
}

func (s *Server) handleScrape(m *protocol.ScrapeRequest, from *net.UDPAddr) protocol.Message {
	if !s.validConnection(m.ConnectionID, from) {
		return &protocol.ErrorResponse{TransactionID: m.TransactionID, Message: errInvalidConnectionID.Error()}
	}

	hashes := m.InfoHashes
	if len(hashes) > protocol.MaxScrapeHashes {
		hashes = hashes[:protocol.MaxScrapeHashes]
	}

	files := make([]protocol.ScrapeFile, 0, len(hashes))
	for _, h := range hashes {
		files = append(files, s.store.Stats(h))
	}
	return &protocol.ScrapeResponse{TransactionID: m.TransactionID, Files: files}
}

func (s *Server) prune() {
	s.mu.Lock()
	now := s.now()
	for id, c := range s.connections {
		if now.Sub(c.issued) > s.config.ConnectionIDTTL {
			delete(s.connections, id)
		}
	}
	s.mu.Unlock()

	if n := s.store.Prune(); n > 0 {
		s.logger.WithField("peers", n).Debug("Pruned stale peers")
	}
}

func addrOf(a *net.UDPAddr) netip.Addr {
	return a.AddrPort().Addr().Unmap()
}
