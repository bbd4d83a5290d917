// Package limits provides centralized size and timing constants plus
// validation functions for the LSNP protocol. This package ensures consistent
// enforcement across all components of the implementation.
//
// # Size Constants
//
//   - MaxDatagramSize (65535 bytes): The receive buffer size. Every LSNP
//     message, including a fully encoded file chunk, must fit in a single
//     UDP datagram.
//
//   - ChunkDataSize (1024 bytes): The fixed number of raw file bytes per
//     FILE_CHUNK before base64 encoding. All peers chunk at this size so
//     CHUNK_INDEX/TOTAL_CHUNKS arithmetic agrees across implementations.
//
//   - DedupCapacity (4096 entries): The FIFO window of recently seen
//     message IDs used for duplicate suppression.
//
// # Timing Constants
//
// Reliable delivery uses SendAttempts transmissions spaced AckTimeout apart.
// File offers expire after OfferAcceptTimeout if the recipient never accepts,
// and fully sent transfers are reaped after SentTransferTTL if FILE_RECEIVED
// never arrives. Presence beacons repeat every PresenceInterval; a peer that
// has been silent longer than PeerActiveWindow is no longer shown as active.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit violations:
//
//	err := limits.ValidateDatagramSize(frame)
//	if err != nil {
//	    // Handle validation error (ErrMessageEmpty or ErrMessageTooLarge)
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
package limits
