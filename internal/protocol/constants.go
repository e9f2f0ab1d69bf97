// Package protocol frames the UDP tracker protocol (BEP 15). All integers
// are big-endian; none of these messages are bencoded.
package protocol

import "fmt"

const (
	ProtocolID uint64 = 0x41727101980

	InfoHashSize    = 20
	PeerIDSize      = 20
	CompactPeerSize = 6

	ConnectRequestSize      = 16
	ConnectResponseSize     = 16
	AnnounceRequestSize     = 98
	AnnounceResponseMinSize = 20
	ScrapeRequestMinSize    = 16 + InfoHashSize
	ScrapeResponseMinSize   = 8
	ErrorResponseMinSize    = 8
	scrapeEntrySize         = 12

	// MaxScrapeHashes keeps a scrape request inside a typical MTU.
	MaxScrapeHashes = 74

	DefaultNumWant int32 = -1
)

type Action uint32

const (
	ActionConnect  Action = 0
	ActionAnnounce Action = 1
	ActionScrape   Action = 2
	ActionError    Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "CONNECT"
	case ActionAnnounce:
		return "ANNOUNCE"
	case ActionScrape:
		return "SCRAPE"
	case ActionError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type Event uint32

const (
	EventNone      Event = 0
	EventCompleted Event = 1
	EventStarted   Event = 2
	EventStopped   Event = 3
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventCompleted:
		return "completed"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func ParseEvent(s string) (Event, error) {
	switch s {
	case "", "none":
		return EventNone, nil
	case "completed":
		return EventCompleted, nil
	case "started":
		return EventStarted, nil
	case "stopped":
		return EventStopped, nil
	default:
		return EventNone, fmt.Errorf("unknown announce event %q", s)
	}
}
