package tracker

import (
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
)

const (
	defaultBaseTimeout     = 15 * time.Second
	defaultMaxBackoff      = 15 * time.Second << 8
	defaultMaxRetries      = 8
	defaultConnectionIDTTL = time.Minute
)

// Config tunes a Session. Zero fields take the defaults below.
type Config struct {
	// BaseTimeout is the wait before the first retransmission. Attempt n
	// waits BaseTimeout * 2^n, capped at MaxBackoff.
	BaseTimeout time.Duration
	MaxBackoff  time.Duration
	// MaxRetries is the number of consecutive timeouts that fail a Session.
	MaxRetries      int
	ConnectionIDTTL time.Duration

	// NumWant of 0 sends the protocol default of -1.
	NumWant int32
	Port    uint16
	// Key of 0 makes each Session draw its own.
	Key uint32
}

func DefaultConfig() Config {
	return Config{
		BaseTimeout:     defaultBaseTimeout,
		MaxBackoff:      defaultMaxBackoff,
		MaxRetries:      defaultMaxRetries,
		ConnectionIDTTL: defaultConnectionIDTTL,
		NumWant:         protocol.DefaultNumWant,
		Port:            6881,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = defaultBaseTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ConnectionIDTTL <= 0 {
		c.ConnectionIDTTL = defaultConnectionIDTTL
	}
	if c.NumWant == 0 {
		c.NumWant = protocol.DefaultNumWant
	}
	return c
}

// backoff returns the timer for the given retry count.
func (c Config) backoff(retry int) time.Duration {
	if retry >= 32 {
		return c.MaxBackoff
	}
	d := c.BaseTimeout << retry
	if d <= 0 || d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
