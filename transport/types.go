package transport

import "net"

// Receiver consumes one inbound datagram. The transport invokes it from its
// single receive goroutine, so receivers see datagrams in arrival order and
// may keep per-message work synchronous.
type Receiver func(data []byte, addr *net.UDPAddr)

// Transport defines the interface for sending LSNP frames.
type Transport interface {
	// Send writes one frame to the specified address.
	Send(frame []byte, addr net.Addr) error

	// Broadcast writes one frame to the subnet broadcast address and the
	// limited broadcast address.
	Broadcast(frame []byte) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr
}
