package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
	"github.com/sirupsen/logrus"
)

const maxTransactionDraws = 16

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateAnnouncing
	StateScraping
	StateAnnounced
	StateScraped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAnnouncing:
		return "ANNOUNCING"
	case StateScraping:
		return "SCRAPING"
	case StateAnnounced:
		return "ANNOUNCED"
	case StateScraped:
		return "SCRAPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StateAnnounced || s == StateScraped || s == StateFailed
}

type OutcomeKind int

const (
	OutcomeConnected OutcomeKind = iota + 1
	OutcomeAnnounced
	OutcomeScraped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConnected:
		return "CONNECTED"
	case OutcomeAnnounced:
		return "ANNOUNCED"
	case OutcomeScraped:
		return "SCRAPED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is one event on a Session's stream.
type Outcome struct {
	Kind     OutcomeKind
	Announce *AnnounceResult
	Scrape   []protocol.ScrapeFile
	Err      error
}

type AnnounceResult struct {
	Interval time.Duration
	Leechers uint32
	Seeders  uint32
	Peers    []netip.AddrPort
}

type AnnounceRequest struct {
	InfoHash   protocol.InfoHash
	PeerID     protocol.PeerID
	Event      protocol.Event
	Downloaded int64
	Left       int64
	Uploaded   int64
}

// RandomSource draws transaction ids and keys. *math/rand.Rand satisfies it.
type RandomSource interface {
	Uint32() uint32
}

// Session drives one connect/announce (or connect/scrape) exchange with one
// tracker. All of its mutable fields are owned by the goroutine started by
// Start; only the state is read from outside.
type Session struct {
	id         string
	cfg        Config
	dispatcher *Dispatcher
	codec      *protocol.Codec
	rnd        RandomSource
	logger     *logrus.Entry
	now        func() time.Time

	state atomic.Int32

	addr       *net.UDPAddr
	op         protocol.Action
	announce   AnnounceRequest
	infoHashes []protocol.InfoHash
	key        uint32

	connectionID  uint64
	connectedAt   time.Time
	transactionID uint32
	registered    bool
	inbox         <-chan transport.Datagram
	retryCount    int
	reconnecting  bool
	connectedSent bool
	timer         *time.Timer
	out           chan Outcome
}

func NewSession(cfg Config, d *Dispatcher, rnd RandomSource, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		cfg:        cfg.withDefaults(),
		dispatcher: d,
		codec:      protocol.NewCodec(),
		rnd:        rnd,
		logger:     log.WithField("session", id[:8]),
		now:        time.Now,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Start announces req to trackerURL. The stream yields OutcomeConnected once
// the first connection id is obtained, then exactly one of OutcomeAnnounced
// or OutcomeFailed, and is then closed. Cancelling ctx fails the session.
func (s *Session) Start(ctx context.Context, trackerURL string, req AnnounceRequest) <-chan Outcome {
	return s.start(ctx, trackerURL, protocol.ActionAnnounce, req, nil)
}

// StartScrape is Start for a scrape of up to protocol.MaxScrapeHashes hashes.
func (s *Session) StartScrape(ctx context.Context, trackerURL string, infoHashes []protocol.InfoHash) <-chan Outcome {
	return s.start(ctx, trackerURL, protocol.ActionScrape, AnnounceRequest{}, infoHashes)
}

func (s *Session) start(ctx context.Context, trackerURL string, op protocol.Action, req AnnounceRequest, infoHashes []protocol.InfoHash) <-chan Outcome {
	out := make(chan Outcome, 2)
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		out <- Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("session %s already started", s.id)}
		close(out)
		return out
	}

	s.op = op
	s.announce = req
	s.infoHashes = infoHashes
	s.out = out
	go s.run(ctx, trackerURL)
	return out
}

func (s *Session) run(ctx context.Context, trackerURL string) {
	defer close(s.out)
	defer s.release()

	host, port, err := ParseTrackerURL(trackerURL)
	if err != nil {
		s.fail(err)
		return
	}
	s.logger = s.logger.WithField("tracker", trackerURL)

	s.addr, err = s.dispatcher.Resolve(host, port)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
		return
	}

	s.key = s.cfg.Key
	if s.key == 0 {
		s.key = s.rnd.Uint32()
	}
	s.retryCount = 0

	s.logger.Debug("Connecting to tracker")
	if err := s.sendConnect(); err != nil {
		s.fail(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		case <-s.dispatcher.Done():
			s.fail(fmt.Errorf("%w: %w", ErrTransport, transport.ErrClosed))
			return
		case <-s.timer.C:
			if err := s.onTimeout(); err != nil {
				s.fail(err)
				return
			}
		case dg := <-s.inbox:
			done, err := s.onDatagram(dg)
			if err != nil {
				s.fail(err)
				return
			}
			if done {
				return
			}
		}
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) sendConnect() error {
	s.setState(StateConnecting)

	txID, err := s.newTransaction(protocol.ActionConnect)
	if err != nil {
		return err
	}

	payload, err := s.codec.Encode(&protocol.ConnectRequest{TransactionID: txID})
	if err != nil {
		return err
	}
	return s.send(payload)
}

func (s *Session) sendRequest() error {
	var msg protocol.Message

	switch s.op {
	case protocol.ActionScrape:
		s.setState(StateScraping)
		txID, err := s.newTransaction(protocol.ActionScrape)
		if err != nil {
			return err
		}
		msg = &protocol.ScrapeRequest{
			ConnectionID:  s.connectionID,
			TransactionID: txID,
			InfoHashes:    s.infoHashes,
		}
	default:
		s.setState(StateAnnouncing)
		txID, err := s.newTransaction(protocol.ActionAnnounce)
		if err != nil {
			return err
		}
		msg = &protocol.AnnounceRequest{
			ConnectionID:  s.connectionID,
			TransactionID: txID,
			InfoHash:      s.announce.InfoHash,
			PeerID:        s.announce.PeerID,
			Downloaded:    s.announce.Downloaded,
			Left:          s.announce.Left,
			Uploaded:      s.announce.Uploaded,
			Event:         s.announce.Event,
			Key:           s.key,
			NumWant:       s.cfg.NumWant,
			Port:          s.cfg.Port,
		}
	}

	payload, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	return s.send(payload)
}

// newTransaction retires the current transaction id, so late replies to it
// are dropped by the dispatcher, and registers a fresh one.
func (s *Session) newTransaction(action protocol.Action) (uint32, error) {
	s.unregister()

	wait := s.cfg.backoff(s.retryCount)
	deadline := s.now().Add(wait)

	for i := 0; i < maxTransactionDraws; i++ {
		txID := s.rnd.Uint32()
		inbox, err := s.dispatcher.Register(txID, action, s.addr, deadline, s.retryCount)
		if errors.Is(err, ErrTransactionInUse) {
			continue
		}
		if err != nil {
			return 0, err
		}

		s.transactionID = txID
		s.inbox = inbox
		s.registered = true
		s.arm(wait)
		return txID, nil
	}
	return 0, fmt.Errorf("%w: no free id after %d draws", ErrTransactionInUse, maxTransactionDraws)
}

func (s *Session) send(payload []byte) error {
	s.logger.WithFields(logrus.Fields{
		"state": s.State().String(),
		"txid":  fmt.Sprintf("%08x", s.transactionID),
		"bytes": len(payload),
	}).Debug("Sending request")

	if _, err := s.dispatcher.Send(payload, s.addr); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (s *Session) onTimeout() error {
	s.retryCount++
	if s.retryCount >= s.cfg.MaxRetries {
		return fmt.Errorf("%w: %d consecutive timeouts: %w", ErrMaxRetriesExceeded, s.retryCount, ErrTimeout)
	}

	log := s.logger.WithFields(logrus.Fields{
		"state":   s.State().String(),
		"attempt": s.retryCount,
		"backoff": s.cfg.backoff(s.retryCount),
	})

	switch s.State() {
	case StateConnecting:
		log.WithError(ErrTimeout).Warn("Connect timed out, retrying")
		return s.sendConnect()
	case StateAnnouncing, StateScraping:
		if s.connectionExpired() {
			log.WithError(ErrConnectionExpired).Warn("Request timed out, reconnecting")
			s.reconnecting = true
			return s.sendConnect()
		}
		log.WithError(ErrTimeout).Warn("Request timed out, retrying")
		return s.sendRequest()
	default:
		return nil
	}
}

func (s *Session) connectionExpired() bool {
	return s.now().Sub(s.connectedAt) >= s.cfg.ConnectionIDTTL
}

func (s *Session) onDatagram(dg transport.Datagram) (bool, error) {
	expected := protocol.ActionConnect
	if st := s.State(); st == StateAnnouncing || st == StateScraping {
		expected = s.op
	}

	msg, err := s.codec.DecodeResponse(dg.Data, expected, s.transactionID)
	if errors.Is(err, protocol.ErrTransactionMismatch) {
		s.logger.WithError(err).Debug("Ignoring response for another transaction")
		return false, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("from", dg.From).Warn("Discarding invalid response")
		return false, nil
	}

	switch m := msg.(type) {
	case *protocol.ErrorResponse:
		return false, fmt.Errorf("%w: %s", ErrTrackerFailure, m.Message)
	case *protocol.ConnectResponse:
		return false, s.onConnected(m)
	case *protocol.AnnounceResponse:
		s.finish(StateAnnounced, Outcome{
			Kind: OutcomeAnnounced,
			Announce: &AnnounceResult{
				Interval: time.Duration(m.Interval) * time.Second,
				Leechers: m.Leechers,
				Seeders:  m.Seeders,
				Peers:    m.Peers,
			},
		})
		s.logger.WithFields(logrus.Fields{
			"peers":    len(m.Peers),
			"seeders":  m.Seeders,
			"leechers": m.Leechers,
			"interval": m.Interval,
		}).Info("Announce complete")
		return true, nil
	case *protocol.ScrapeResponse:
		s.finish(StateScraped, Outcome{Kind: OutcomeScraped, Scrape: m.Files})
		s.logger.WithField("files", len(m.Files)).Info("Scrape complete")
		return true, nil
	default:
		return false, nil
	}
}

func (s *Session) onConnected(m *protocol.ConnectResponse) error {
	s.connectionID = m.ConnectionID
	s.connectedAt = s.now()
	// A reconnect forced by expiry keeps counting toward MaxRetries so that
	// an unresponsive announce path still terminates.
	if !s.reconnecting {
		s.retryCount = 0
	}
	s.reconnecting = false
	s.setState(StateConnected)

	s.logger.WithField("connection_id", fmt.Sprintf("%016x", m.ConnectionID)).Debug("Connected to tracker")
	if !s.connectedSent {
		s.connectedSent = true
		s.out <- Outcome{Kind: OutcomeConnected}
	}

	return s.sendRequest()
}

func (s *Session) finish(st State, o Outcome) {
	s.release()
	s.setState(st)
	s.out <- o
}

func (s *Session) fail(err error) {
	s.release()
	s.setState(StateFailed)

	if errors.Is(err, context.Canceled) {
		s.logger.Debug("Session cancelled")
	} else {
		s.logger.WithError(err).Error("Session failed")
	}
	s.out <- Outcome{Kind: OutcomeFailed, Err: err}
}

func (s *Session) arm(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.NewTimer(d)
}

func (s *Session) unregister() {
	if s.registered {
		s.dispatcher.Unregister(s.transactionID)
		s.registered = false
	}
}

func (s *Session) release() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.unregister()
}

// ParseTrackerURL splits udp://host:port[/path] into host and port.
func ParseTrackerURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "udp" {
		return "", 0, fmt.Errorf("%w: scheme %q, want udp", ErrInvalidURL, u.Scheme)
	}

	host, portStr := u.Hostname(), u.Port()
	if host == "" || portStr == "" {
		return "", 0, fmt.Errorf("%w: %q needs a host and a port", ErrInvalidURL, raw)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidURL, portStr)
	}
	return host, port, nil
}
