package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("transport closed")

// Datagram is one inbound UDP payload and its sender.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// UDPTransport owns a single UDP socket. One goroutine reads it and
// publishes datagrams on Recv until the socket is closed.
type UDPTransport struct {
	conn   *net.UDPConn
	logger *logrus.Entry
	recv   chan Datagram
	done   chan struct{}
	once   sync.Once
	bufLen int
}

func NewUDPTransport(cfg Config) (*UDPTransport, error) {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolving listen address %q: %w", cfg.Addr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", cfg.Addr, err)
	}

	t := &UDPTransport{
		conn:   conn,
		logger: log.WithField("local", conn.LocalAddr().String()),
		recv:   make(chan Datagram, cfg.QueueSize),
		done:   make(chan struct{}),
		bufLen: cfg.ReadBufferSize,
	}
	go t.readLoop()

	return t, nil
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Recv is closed once the socket stops delivering datagrams.
func (t *UDPTransport) Recv() <-chan Datagram {
	return t.recv
}

// Send resolves host and writes payload as one datagram.
func (t *UDPTransport) Send(payload []byte, host string, port int) (int, error) {
	addr, err := t.Resolve(host, port)
	if err != nil {
		return 0, err
	}
	return t.SendTo(payload, addr)
}

func (t *UDPTransport) Resolve(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	return addr, nil
}

func (t *UDPTransport) SendTo(payload []byte, addr *net.UDPAddr) (int, error) {
	select {
	case <-t.done:
		return 0, ErrClosed
	default:
	}

	n, err := t.conn.WriteToUDP(payload, addr)
	if err != nil {
		return n, fmt.Errorf("writing to %s: %w", addr, err)
	}
	return n, nil
}

func (t *UDPTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *UDPTransport) readLoop() {
	defer close(t.recv)

	buf := make([]byte, t.bufLen)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.WithError(err).Error("UDP read failed, stopping transport")
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case t.recv <- Datagram{Data: data, From: from}:
		case <-t.done:
			return
		}
	}
}
