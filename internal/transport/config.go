package transport

import "github.com/sirupsen/logrus"

const (
	// Room for the largest UDP payload. A shorter buffer cuts datagrams
	// silently, and a cut compact peer list can still look well formed.
	defaultReadBufferSize = 65535
	defaultQueueSize      = 256
)

type Config struct {
	Addr           string
	ReadBufferSize int
	QueueSize      int
	Logger         *logrus.Logger
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":0",
		ReadBufferSize: defaultReadBufferSize,
		QueueSize:      defaultQueueSize,
	}
}
