// Package transport provides the UDP substrate for LSNP: one socket per
// node carrying every message type, with unicast sends, dual-target
// broadcasts, and a single-goroutine receive loop.
//
// # Receiving
//
// All inbound datagrams flow through one Receiver callback installed with
// SetReceiver. The transport makes no attempt to interpret frames; parsing,
// validation, and dispatch belong to the layers above:
//
//	t, err := transport.NewUDPTransport(":50999")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t.SetReceiver(func(data []byte, addr *net.UDPAddr) {
//	    // hand to the router
//	})
//
// The receiver runs on the receive goroutine itself. Handlers that need to
// block for long periods should move that work elsewhere.
//
// # Broadcasts
//
// Broadcast targets both the directed subnet broadcast (derived from the
// primary interface's netmask) and 255.255.255.255, since some segments
// filter one or the other. Peers on the same port convention receive each
// beacon at most twice; duplicate suppression upstream makes that harmless.
package transport
