package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
)

const peerIDPrefix = "-BT0001-"

func parseInfoHash(s string) (protocol.InfoHash, error) {
	var h protocol.InfoHash
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return h, fmt.Errorf("info hash %q: %w", s, err)
	}
	if len(b) != protocol.InfoHashSize {
		return h, fmt.Errorf("info hash %q: want %d bytes, got %d", s, protocol.InfoHashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// parsePeerID accepts a 20 byte id. An empty string generates an
// Azureus-style id with a random suffix.
func parsePeerID(s string) (protocol.PeerID, error) {
	var id protocol.PeerID
	if s == "" {
		s = peerIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:protocol.PeerIDSize-len(peerIDPrefix)]
	}
	if len(s) != protocol.PeerIDSize {
		return id, fmt.Errorf("peer id %q: want %d bytes, got %d", s, protocol.PeerIDSize, len(s))
	}
	copy(id[:], s)
	return id, nil
}

// mergeTrackers joins tracker lists in order, keeping the first copy of
// each URL.
func mergeTrackers(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
