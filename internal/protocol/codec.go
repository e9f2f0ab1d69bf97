package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrTruncatedMessage    = errors.New("truncated message")
	ErrActionMismatch      = errors.New("unexpected action")
	ErrTransactionMismatch = errors.New("transaction id mismatch")
	ErrMalformedPeers      = errors.New("malformed compact peer list")
	ErrProtocolID          = errors.New("invalid protocol id")
	ErrUnknownMessage      = errors.New("unknown message")
)

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Encode serialises any request or response message.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *ConnectRequest:
		b := make([]byte, 0, ConnectRequestSize)
		b = binary.BigEndian.AppendUint64(b, ProtocolID)
		b = binary.BigEndian.AppendUint32(b, uint32(ActionConnect))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		return b, nil

	case *ConnectResponse:
		b := make([]byte, 0, ConnectResponseSize)
		b = binary.BigEndian.AppendUint32(b, uint32(ActionConnect))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		b = binary.BigEndian.AppendUint64(b, m.ConnectionID)
		return b, nil

	case *AnnounceRequest:
		b := make([]byte, 0, AnnounceRequestSize)
		b = binary.BigEndian.AppendUint64(b, m.ConnectionID)
		b = binary.BigEndian.AppendUint32(b, uint32(ActionAnnounce))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		b = append(b, m.InfoHash[:]...)
		b = append(b, m.PeerID[:]...)
		b = binary.BigEndian.AppendUint64(b, uint64(m.Downloaded))
		b = binary.BigEndian.AppendUint64(b, uint64(m.Left))
		b = binary.BigEndian.AppendUint64(b, uint64(m.Uploaded))
		b = binary.BigEndian.AppendUint32(b, uint32(m.Event))
		b = binary.BigEndian.AppendUint32(b, m.IP)
		b = binary.BigEndian.AppendUint32(b, m.Key)
		b = binary.BigEndian.AppendUint32(b, uint32(m.NumWant))
		b = binary.BigEndian.AppendUint16(b, m.Port)
		return b, nil

	case *AnnounceResponse:
		b := make([]byte, 0, AnnounceResponseMinSize+CompactPeerSize*len(m.Peers))
		b = binary.BigEndian.AppendUint32(b, uint32(ActionAnnounce))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		b = binary.BigEndian.AppendUint32(b, m.Interval)
		b = binary.BigEndian.AppendUint32(b, m.Leechers)
		b = binary.BigEndian.AppendUint32(b, m.Seeders)
		peers, err := EncodePeersCompact(m.Peers)
		if err != nil {
			return nil, err
		}
		return append(b, peers...), nil

	case *ScrapeRequest:
		if len(m.InfoHashes) == 0 || len(m.InfoHashes) > MaxScrapeHashes {
			return nil, fmt.Errorf("scrape request with %d info hashes, want 1..%d", len(m.InfoHashes), MaxScrapeHashes)
		}
		b := make([]byte, 0, 16+InfoHashSize*len(m.InfoHashes))
		b = binary.BigEndian.AppendUint64(b, m.ConnectionID)
		b = binary.BigEndian.AppendUint32(b, uint32(ActionScrape))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		for _, h := range m.InfoHashes {
			b = append(b, h[:]...)
		}
		return b, nil

	case *ScrapeResponse:
		b := make([]byte, 0, ScrapeResponseMinSize+scrapeEntrySize*len(m.Files))
		b = binary.BigEndian.AppendUint32(b, uint32(ActionScrape))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		for _, f := range m.Files {
			b = binary.BigEndian.AppendUint32(b, f.Seeders)
			b = binary.BigEndian.AppendUint32(b, f.Completed)
			b = binary.BigEndian.AppendUint32(b, f.Leechers)
		}
		return b, nil

	case *ErrorResponse:
		b := make([]byte, 0, ErrorResponseMinSize+len(m.Message))
		b = binary.BigEndian.AppendUint32(b, uint32(ActionError))
		b = binary.BigEndian.AppendUint32(b, m.TransactionID)
		return append(b, m.Message...), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// PeekTransactionID reads the transaction id every response carries at
// bytes 4..8.
func PeekTransactionID(data []byte) (uint32, bool) {
	if len(data) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint32(data[4:8]), true
}

// DecodeResponse validates a response to the request identified by
// transactionID. A tracker error for that transaction is returned as
// *ErrorResponse with a nil error so callers can surface the message.
func (c *Codec) DecodeResponse(data []byte, expected Action, transactionID uint32) (Message, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedMessage, len(data))
	}

	action := Action(binary.BigEndian.Uint32(data[0:4]))
	txID := binary.BigEndian.Uint32(data[4:8])
	if txID != transactionID {
		return nil, fmt.Errorf("%w: got %08x, want %08x", ErrTransactionMismatch, txID, transactionID)
	}

	if action == ActionError {
		return &ErrorResponse{TransactionID: txID, Message: string(data[8:])}, nil
	}
	if action != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrActionMismatch, action, expected)
	}

	switch expected {
	case ActionConnect:
		if len(data) < ConnectResponseSize {
			return nil, fmt.Errorf("%w: connect response of %d bytes", ErrTruncatedMessage, len(data))
		}
		return &ConnectResponse{
			TransactionID: txID,
			ConnectionID:  binary.BigEndian.Uint64(data[8:16]),
		}, nil

	case ActionAnnounce:
		if len(data) < AnnounceResponseMinSize {
			return nil, fmt.Errorf("%w: announce response of %d bytes", ErrTruncatedMessage, len(data))
		}
		peers, err := DecodePeersCompact(data[AnnounceResponseMinSize:])
		if err != nil {
			return nil, err
		}
		return &AnnounceResponse{
			TransactionID: txID,
			Interval:      binary.BigEndian.Uint32(data[8:12]),
			Leechers:      binary.BigEndian.Uint32(data[12:16]),
			Seeders:       binary.BigEndian.Uint32(data[16:20]),
			Peers:         peers,
		}, nil

	case ActionScrape:
		body := data[ScrapeResponseMinSize:]
		if len(body)%scrapeEntrySize != 0 {
			return nil, fmt.Errorf("%w: scrape body of %d bytes", ErrTruncatedMessage, len(body))
		}
		files := make([]ScrapeFile, 0, len(body)/scrapeEntrySize)
		for i := 0; i < len(body); i += scrapeEntrySize {
			files = append(files, ScrapeFile{
				Seeders:   binary.BigEndian.Uint32(body[i : i+4]),
				Completed: binary.BigEndian.Uint32(body[i+4 : i+8]),
				Leechers:  binary.BigEndian.Uint32(body[i+8 : i+12]),
			})
		}
		return &ScrapeResponse{TransactionID: txID, Files: files}, nil

	default:
		return nil, fmt.Errorf("%w: %s response", ErrUnknownMessage, expected)
	}
}

// DecodeRequest parses a datagram received by a tracker.
func (c *Codec) DecodeRequest(data []byte) (Message, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedMessage, len(data))
	}

	connectionID := binary.BigEndian.Uint64(data[0:8])
	action := Action(binary.BigEndian.Uint32(data[8:12]))
	txID := binary.BigEndian.Uint32(data[12:16])

	switch action {
	case ActionConnect:
		if connectionID != ProtocolID {
			return nil, fmt.Errorf("%w: %016x", ErrProtocolID, connectionID)
		}
		return &ConnectRequest{TransactionID: txID}, nil

	case ActionAnnounce:
		// BEP 41 options may follow the fixed part; they are ignored.
		if len(data) < AnnounceRequestSize {
			return nil, fmt.Errorf("%w: announce request of %d bytes", ErrTruncatedMessage, len(data))
		}
		req := &AnnounceRequest{
			ConnectionID:  connectionID,
			TransactionID: txID,
			Downloaded:    int64(binary.BigEndian.Uint64(data[56:64])),
			Left:          int64(binary.BigEndian.Uint64(data[64:72])),
			Uploaded:      int64(binary.BigEndian.Uint64(data[72:80])),
			Event:         Event(binary.BigEndian.Uint32(data[80:84])),
			IP:            binary.BigEndian.Uint32(data[84:88]),
			Key:           binary.BigEndian.Uint32(data[88:92]),
			NumWant:       int32(binary.BigEndian.Uint32(data[92:96])),
			Port:          binary.BigEndian.Uint16(data[96:98]),
		}
		copy(req.InfoHash[:], data[16:36])
		copy(req.PeerID[:], data[36:56])
		return req, nil

	case ActionScrape:
		body := data[16:]
		if len(body) == 0 || len(body)%InfoHashSize != 0 {
			return nil, fmt.Errorf("%w: scrape body of %d bytes", ErrTruncatedMessage, len(body))
		}
		req := &ScrapeRequest{ConnectionID: connectionID, TransactionID: txID}
		for i := 0; i < len(body); i += InfoHashSize {
			var h InfoHash
			copy(h[:], body[i:i+InfoHashSize])
			req.InfoHashes = append(req.InfoHashes, h)
		}
		return req, nil

	default:
		return nil, fmt.Errorf("%w: %s (%d)", ErrActionMismatch, action, uint32(action))
	}
}

// DecodePeersCompact parses repeated (ipv4, port) entries.
func DecodePeersCompact(b []byte) ([]netip.AddrPort, error) {
	if len(b)%CompactPeerSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPeers, len(b), CompactPeerSize)
	}
	peers := make([]netip.AddrPort, 0, len(b)/CompactPeerSize)
	for i := 0; i < len(b); i += CompactPeerSize {
		ip := netip.AddrFrom4([4]byte(b[i : i+4]))
		port := binary.BigEndian.Uint16(b[i+4 : i+6])
		peers = append(peers, netip.AddrPortFrom(ip, port))
	}
	return peers, nil
}

func EncodePeersCompact(peers []netip.AddrPort) ([]byte, error) {
	b := make([]byte, 0, CompactPeerSize*len(peers))
	for _, p := range peers {
		addr := p.Addr().Unmap()
		if !addr.Is4() {
			return nil, fmt.Errorf("%w: %s is not IPv4", ErrMalformedPeers, p)
		}
		ip := addr.As4()
		b = append(b, ip[:]...)
		b = binary.BigEndian.AppendUint16(b, p.Port())
	}
	return b, nil
}
