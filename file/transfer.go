package file

import (
	"errors"
	"time"
)

// ErrEmptyFile indicates an attempt to offer a zero-byte file, which the
// chunk stream cannot represent.
var ErrEmptyFile = errors.New("cannot offer an empty file")

// ErrUnknownOffer indicates an accept or reject for a file id with no
// pending offer.
var ErrUnknownOffer = errors.New("no pending offer for file id")

// ErrUnknownTransfer indicates a chunk or control message for a file id
// this peer is not transferring.
var ErrUnknownTransfer = errors.New("no active transfer for file id")

// ErrOfferInvalid indicates an offer whose declared geometry cannot
// describe a real transfer.
var ErrOfferInvalid = errors.New("invalid file offer")

// ErrChunkOutOfRange indicates a chunk index outside the declared total.
var ErrChunkOutOfRange = errors.New("chunk index out of range")

// ErrChunkCorrupt indicates a chunk whose DATA field does not decode.
var ErrChunkCorrupt = errors.New("chunk data does not decode")

// TransferState tracks an outgoing transfer through its lifecycle.
type TransferState uint8

const (
	// TransferOffered means the offer was acknowledged and we are waiting
	// for the recipient's decision.
	TransferOffered TransferState = iota
	// TransferAccepted means the recipient accepted and chunking is about
	// to begin.
	TransferAccepted
	// TransferSending means the chunk stream is in flight.
	TransferSending
	// TransferSent means every chunk went out and we await the completion
	// message.
	TransferSent
	// TransferTimedOut means no acceptance arrived within the offer window.
	TransferTimedOut
)

// String returns the state name.
func (s TransferState) String() string {
	switch s {
	case TransferOffered:
		return "offered"
	case TransferAccepted:
		return "accepted"
	case TransferSending:
		return "sending"
	case TransferSent:
		return "sent"
	case TransferTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// OutgoingTransfer is one file we offered to a peer. The channels connect
// the offer watcher with the routed accept/reject/received handlers.
type OutgoingTransfer struct {
	FileID      string
	Recipient   string
	Path        string
	Filename    string
	Size        int64
	TotalChunks int
	Token       string
	State       TransferState
	OfferedAt   time.Time

	decision  chan bool
	completed chan struct{}
}

// IncomingOffer is a received offer awaiting a local accept or reject.
type IncomingOffer struct {
	FileID      string
	From        string
	Filename    string
	Size        int64
	Filetype    string
	Description string
	TotalChunks int
	ChunkSize   int
	ReceivedAt  time.Time
}

// IncomingTransfer collects the chunks of an accepted offer. Chunks are
// stored by index; duplicates overwrite, and assembly happens exactly when
// the number of distinct in-range indices reaches TotalChunks.
type IncomingTransfer struct {
	FileID      string
	From        string
	Filename    string
	Size        int64
	TotalChunks int
	AcceptedAt  time.Time

	chunks map[int][]byte
}

// Received reports how many distinct chunks have arrived.
func (t *IncomingTransfer) Received() int {
	return len(t.chunks)
}
