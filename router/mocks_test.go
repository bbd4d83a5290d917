package router

import (
	"net"
	"sync"
)

type sentFrame struct {
	data []byte
	addr net.Addr
}

// mockTransport records outbound frames for inspection.
type mockTransport struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (m *mockTransport) Send(frame []byte, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.frames = append(m.frames, sentFrame{data: buf, addr: addr})
	return nil
}

func (m *mockTransport) Broadcast(frame []byte) error {
	return m.Send(frame, &net.UDPAddr{IP: net.IPv4bcast, Port: 0})
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50999}
}

func (m *mockTransport) sent() []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentFrame, len(m.frames))
	copy(out, m.frames)
	return out
}

func (m *mockTransport) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}
