package discovery

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/wire"
)

// stubWire records every frame handed to the transport. Presence traffic is
// fire-and-forget, so no ACK machinery is needed here.
type stubWire struct {
	mu     sync.Mutex
	frames []wire.Fields
}

func newStubWire() *stubWire {
	return &stubWire{}
}

func (s *stubWire) record(frame []byte) error {
	fields, err := wire.ParseFrame(frame)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, fields)
	return nil
}

func (s *stubWire) Send(frame []byte, addr net.Addr) error { return s.record(frame) }
func (s *stubWire) Broadcast(frame []byte) error           { return s.record(frame) }
func (s *stubWire) Close() error                           { return nil }

func (s *stubWire) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: limits.DefaultPort}
}

func (s *stubWire) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *stubWire) countOf(t wire.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fields := range s.frames {
		if fields.Type() == t {
			n++
		}
	}
	return n
}

func (s *stubWire) lastOf(t wire.MessageType) (wire.Fields, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Type() == t {
			return s.frames[i], true
		}
	}
	return nil, false
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
