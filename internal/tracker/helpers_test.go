package tracker

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/logger"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/rudransh-shrivastava/bttrack/internal/transport"
)

type sentDatagram struct {
	data []byte
	addr *net.UDPAddr
}

// fakeTrackerAddr is where every host resolves to, and where replies come from.
var fakeTrackerAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6969}

// fakeTransport records outbound datagrams and lets tests inject replies.
type fakeTransport struct {
	mu         sync.Mutex
	count      int
	sendErr    error
	resolveErr error
	resolved   []string

	sent chan sentDatagram
	recv chan transport.Datagram
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent: make(chan sentDatagram, 64),
		recv: make(chan transport.Datagram, 16),
	}
}

func (f *fakeTransport) Resolve(host string, port int) (*net.UDPAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	f.resolved = append(f.resolved, net.JoinHostPort(host, strconv.Itoa(port)))
	return &net.UDPAddr{IP: fakeTrackerAddr.IP, Port: port}, nil
}

func (f *fakeTransport) resolvedHosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resolved...)
}

func (f *fakeTransport) SendTo(payload []byte, addr *net.UDPAddr) (int, error) {
	f.mu.Lock()
	f.count++
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}

	data := append([]byte(nil), payload...)
	f.sent <- sentDatagram{data: data, addr: addr}
	return len(payload), nil
}

func (f *fakeTransport) Recv() <-chan transport.Datagram {
	return f.recv
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeTransport) deliver(t *testing.T, msg protocol.Message) {
	t.Helper()
	f.deliverFrom(t, msg, fakeTrackerAddr)
}

func (f *fakeTransport) deliverFrom(t *testing.T, msg protocol.Message, from *net.UDPAddr) {
	t.Helper()

	data, err := protocol.NewCodec().Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f.recv <- transport.Datagram{Data: data, From: from}
}

func (f *fakeTransport) runt() transport.Datagram {
	return transport.Datagram{Data: []byte{0, 0, 0}, From: fakeTrackerAddr}
}

// nextRequest waits for the next outbound datagram and decodes it.
func (f *fakeTransport) nextRequest(t *testing.T) protocol.Message {
	t.Helper()

	select {
	case dg := <-f.sent:
		msg, err := protocol.NewCodec().DecodeRequest(dg.data)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for outbound request")
		return nil
	}
}

// fakeClock is a settable time source for connection-id expiry.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setupDispatcher(t *testing.T) (*Dispatcher, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	d := NewDispatcher(tr, logger.Discard())
	d.Start()
	t.Cleanup(func() { close(tr.recv) })
	return d, tr
}

func newTestSession(t *testing.T, d *Dispatcher, cfg Config, seed int64) *Session {
	t.Helper()
	return NewSession(cfg, d, rand.New(rand.NewSource(seed)), logger.Discard())
}

func nextOutcome(t *testing.T, out <-chan Outcome) Outcome {
	t.Helper()

	select {
	case o, ok := <-out:
		if !ok {
			t.Fatal("Outcome stream closed early")
		}
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for outcome")
		return Outcome{}
	}
}

func expectClosed(t *testing.T, out <-chan Outcome) {
	t.Helper()

	select {
	case o, ok := <-out:
		if ok {
			t.Fatalf("Expected closed stream, got %s outcome", o.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for stream to close")
	}
}

// slowConfig never times out within a test.
func slowConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseTimeout = time.Minute
	return cfg
}
