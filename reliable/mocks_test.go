package reliable

import (
	"net"
	"sync"
)

// mockAddr implements net.Addr for tests.
type mockAddr struct {
	address string
}

func (m *mockAddr) Network() string { return "udp" }
func (m *mockAddr) String() string  { return m.address }

// mockTransport records sent frames and lets tests inject failures or react
// to individual transmissions.
type mockTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	onSend  func(count int)
}

func (m *mockTransport) Send(frame []byte, addr net.Addr) error {
	m.mu.Lock()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.frames = append(m.frames, buf)
	count := len(m.frames)
	hook := m.onSend
	err := m.sendErr
	m.mu.Unlock()

	if hook != nil {
		hook(count)
	}
	return err
}

func (m *mockTransport) Broadcast(frame []byte) error {
	return m.Send(frame, &mockAddr{address: "broadcast"})
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) LocalAddr() net.Addr {
	return &mockAddr{address: "127.0.0.1:50999"}
}

func (m *mockTransport) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}
