// Package limits provides centralized size and timing constants for the LSNP
// protocol. This ensures consistent validation across different components of
// the system.
package limits

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultPort is the well-known UDP port all LSNP peers listen on.
	// Unicast replies and ACKs are addressed to this port, never to the
	// ephemeral source port of the incoming datagram.
	DefaultPort = 50999

	// MaxDatagramSize is the receive buffer size for inbound datagrams.
	// A single LSNP message must fit in one UDP datagram.
	MaxDatagramSize = 65535

	// ChunkDataSize is the number of raw file bytes carried per FILE_CHUNK
	// before base64 encoding.
	ChunkDataSize = 1024

	// MaxChunkFieldSize is the largest DATA field a well-formed chunk can
	// carry: ChunkDataSize bytes after base64 expansion (4/3 plus padding).
	MaxChunkFieldSize = ((ChunkDataSize + 2) / 3) * 4

	// DedupCapacity is the number of recently seen message IDs retained for
	// duplicate suppression. Oldest entries are evicted first.
	DedupCapacity = 4096
)

const (
	// AckTimeout is how long a reliable send waits for an ACK before
	// retransmitting.
	AckTimeout = 2 * time.Second

	// SendAttempts is the total number of transmissions (first send plus
	// retries) for a reliable message.
	SendAttempts = 3

	// OfferAcceptTimeout is how long an outgoing file offer waits for the
	// recipient to accept before the transfer is abandoned.
	OfferAcceptTimeout = 30 * time.Second

	// ChunkRetryDelay is the pause before the single retry of a chunk whose
	// first reliable send failed.
	ChunkRetryDelay = 200 * time.Millisecond

	// InterChunkDelay throttles consecutive chunk sends so slow receivers
	// are not flooded.
	InterChunkDelay = 10 * time.Millisecond

	// SentTransferTTL is how long a fully sent transfer is retained while
	// waiting for the recipient's FILE_RECEIVED confirmation.
	SentTransferTTL = 120 * time.Second

	// PeerActiveWindow is how recently a peer must have been heard from to
	// count as active.
	PeerActiveWindow = 60 * time.Second

	// PresenceInterval is the period between broadcast PING/PROFILE beacons.
	PresenceInterval = 300 * time.Second

	// DefaultTokenTTL is the lifetime of freshly minted capability tokens.
	DefaultTokenTTL = 3600 * time.Second

	// ChatTokenTTL is the shorter lifetime used for direct-message tokens.
	ChatTokenTTL = 300 * time.Second

	// PostTTL is the default validity period attached to broadcast posts.
	PostTTL = 3600 * time.Second
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagramSize validates an outbound frame against MaxDatagramSize.
// Frames larger than one UDP datagram cannot be delivered and must be
// rejected before they reach the socket.
func ValidateDatagramSize(frame []byte) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}
	if len(frame) > MaxDatagramSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrMessageTooLarge, len(frame), MaxDatagramSize)
	}
	return nil
}

// ValidateChunkData validates the base64 DATA field of a file chunk against
// MaxChunkFieldSize. Oversized chunks indicate a sender that ignored the
// fixed chunking size and are dropped rather than buffered.
func ValidateChunkData(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxChunkFieldSize {
		return fmt.Errorf("%w: chunk data size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxChunkFieldSize)
	}
	return nil
}
