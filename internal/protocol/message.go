package protocol

import "net/netip"

type Message interface {
	Action() Action
}

type InfoHash [InfoHashSize]byte

type PeerID [PeerIDSize]byte

type ConnectRequest struct {
	TransactionID uint32
}

func (ConnectRequest) Action() Action { return ActionConnect }

type ConnectResponse struct {
	TransactionID uint32
	ConnectionID  uint64
}

func (ConnectResponse) Action() Action { return ActionConnect }

type AnnounceRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHash      InfoHash
	PeerID        PeerID
	Downloaded    int64
	Left          int64
	Uploaded      int64
	Event         Event
	IP            uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

func (AnnounceRequest) Action() Action { return ActionAnnounce }

type AnnounceResponse struct {
	TransactionID uint32
	Interval      uint32
	Leechers      uint32
	Seeders       uint32
	Peers         []netip.AddrPort
}

func (AnnounceResponse) Action() Action { return ActionAnnounce }

type ScrapeRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHashes    []InfoHash
}

func (ScrapeRequest) Action() Action { return ActionScrape }

type ScrapeFile struct {
	Seeders   uint32
	Completed uint32
	Leechers  uint32
}

type ScrapeResponse struct {
	TransactionID uint32
	Files         []ScrapeFile
}

func (ScrapeResponse) Action() Action { return ActionScrape }

type ErrorResponse struct {
	TransactionID uint32
	Message       string
}

func (ErrorResponse) Action() Action { return ActionError }
