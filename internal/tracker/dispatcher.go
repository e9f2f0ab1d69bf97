package tracker

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
	"github.com/sirupsen/logrus"
)

// Transport is what sessions need from the socket layer.
type Transport interface {
	Resolve(host string, port int) (*net.UDPAddr, error)
	SendTo(payload []byte, addr *net.UDPAddr) (int, error)
	Recv() <-chan transport.Datagram
}

const inboxSize = 4

type pending struct {
	inbox    chan transport.Datagram
	action   protocol.Action
	from     *net.UDPAddr
	deadline time.Time
	attempt  int
}

// Dispatcher routes inbound datagrams on a shared socket to the session
// that owns their transaction id. Datagrams nobody waits for are dropped.
type Dispatcher struct {
	transport Transport
	logger    *logrus.Entry

	mu      sync.Mutex
	pending map[uint32]*pending

	done chan struct{}
	once sync.Once
}

func NewDispatcher(tr Transport, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		transport: tr,
		logger:    log.WithField("component", "dispatcher"),
		pending:   make(map[uint32]*pending),
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.once.Do(func() { go d.listen() })
}

// Done is closed when the transport stops delivering datagrams.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) Resolve(host string, port int) (*net.UDPAddr, error) {
	return d.transport.Resolve(host, port)
}

func (d *Dispatcher) Send(payload []byte, addr *net.UDPAddr) (int, error) {
	return d.transport.SendTo(payload, addr)
}

// Register reserves txID until Unregister is called. When from is set, only
// datagrams sent by that address are delivered to the inbox.
func (d *Dispatcher) Register(txID uint32, action protocol.Action, from *net.UDPAddr, deadline time.Time, attempt int) (<-chan transport.Datagram, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pending[txID]; exists {
		return nil, fmt.Errorf("%w: %08x", ErrTransactionInUse, txID)
	}

	p := &pending{
		inbox:    make(chan transport.Datagram, inboxSize),
		action:   action,
		from:     from,
		deadline: deadline,
		attempt:  attempt,
	}
	d.pending[txID] = p
	return p.inbox, nil
}

func (d *Dispatcher) Unregister(txID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, txID)
}

// Pending returns the number of registered transaction ids.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) listen() {
	defer close(d.done)

	for dg := range d.transport.Recv() {
		d.route(dg)
	}
	d.logger.Debug("Transport closed, dispatcher stopping")
}

func (d *Dispatcher) route(dg transport.Datagram) {
	txID, ok := protocol.PeekTransactionID(dg.Data)
	if !ok {
		d.logger.WithField("from", dg.From).Debug("Dropping runt datagram")
		return
	}

	d.mu.Lock()
	p, ok := d.pending[txID]
	d.mu.Unlock()

	if !ok {
		d.logger.WithFields(logrus.Fields{
			"from": dg.From,
			"txid": fmt.Sprintf("%08x", txID),
		}).Debug("No pending request for datagram")
		return
	}

	if p.from != nil && !sameEndpoint(p.from, dg.From) {
		d.logger.WithFields(logrus.Fields{
			"from":     dg.From,
			"expected": p.from,
			"txid":     fmt.Sprintf("%08x", txID),
		}).Warn("Dropping datagram from unexpected sender")
		return
	}

	select {
	case p.inbox <- dg:
	default:
		d.logger.WithFields(logrus.Fields{
			"txid":     fmt.Sprintf("%08x", txID),
			"action":   p.action.String(),
			"attempt":  p.attempt,
			"deadline": p.deadline.Format(time.TimeOnly),
		}).Warn("Session inbox full, dropping datagram")
	}
}

func sameEndpoint(want, got *net.UDPAddr) bool {
	if got == nil {
		return false
	}
	a, b := want.AddrPort(), got.AddrPort()
	return a.Addr().Unmap() == b.Addr().Unmap() && a.Port() == b.Port()
}
