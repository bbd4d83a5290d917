package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lsnp-net/lsnp/limits"
)

// UDPTransport implements UDP-based communication for LSNP. It satisfies
// the Transport interface.
type UDPTransport struct {
	conn       *net.UDPConn
	listenAddr *net.UDPAddr
	broadcasts []*net.UDPAddr
	mu         sync.RWMutex
	receiver   Receiver
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewUDPTransport creates a UDP transport listening on listenAddr, e.g.
// ":50999". Broadcast targets are derived from the primary local interface
// and aimed at the port actually bound, so every peer on the segment that
// follows the same convention hears them.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	bound := conn.LocalAddr().(*net.UDPAddr)

	t := &UDPTransport{
		conn:       conn,
		listenAddr: bound,
		broadcasts: broadcastTargets(bound.Port),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go t.processDatagrams()

	return t, nil
}

// SetReceiver installs the callback invoked for every inbound datagram.
// Datagrams arriving before a receiver is set are dropped.
func (t *UDPTransport) SetReceiver(r Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Send writes one frame to the specified address.
func (t *UDPTransport) Send(frame []byte, addr net.Addr) error {
	if err := limits.ValidateDatagramSize(frame); err != nil {
		return err
	}
	_, err := t.conn.WriteTo(frame, addr)
	return err
}

// Broadcast writes one frame to the subnet broadcast address and to
// 255.255.255.255. Both are attempted even if one fails; the first error is
// reported.
func (t *UDPTransport) Broadcast(frame []byte) error {
	if err := limits.ValidateDatagramSize(frame); err != nil {
		return err
	}
	var firstErr error
	for _, addr := range t.broadcasts {
		if _, err := t.conn.WriteToUDP(frame, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close shuts down the transport and waits for the receive loop to exit.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// processDatagrams is the single receive loop. Using a short read deadline
// keeps the loop responsive to shutdown without busy-waiting.
func (t *UDPTransport) processDatagrams() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.readOneDatagram(buffer)
		}
	}
}

// readOneDatagram reads and dispatches a single datagram. The payload is
// copied out of the shared read buffer before the receiver sees it, since
// the buffer is reused by the next read.
func (t *UDPTransport) readOneDatagram(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, addr, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		// Timeouts are the idle path; every other read error is dropped and
		// the loop keeps serving.
		return
	}
	if n == 0 {
		return
	}

	t.mu.RLock()
	receiver := t.receiver
	t.mu.RUnlock()
	if receiver == nil {
		return
	}

	data := make([]byte, n)
	copy(data, buffer[:n])
	receiver(data, addr)
}
