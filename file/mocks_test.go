package file

import (
	"net"
	"sync"

	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/wire"
)

// fakeWire implements transport.Transport for testing. It parses every sent
// frame and, unless the type is muted, resolves the waiter immediately so
// reliable sends succeed without a peer on the other end.
type fakeWire struct {
	mu      sync.Mutex
	waiters *reliable.Waiters
	history []sentFrame
	queue   []sentFrame
	muted   map[wire.MessageType]bool
}

type sentFrame struct {
	fields wire.Fields
	addr   net.Addr
}

func newFakeWire() *fakeWire {
	return &fakeWire{muted: make(map[wire.MessageType]bool)}
}

// mute stops auto-acknowledging the given type, simulating a peer that
// never answers.
func (f *fakeWire) mute(t wire.MessageType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted[t] = true
}

func (f *fakeWire) Send(frame []byte, addr net.Addr) error {
	fields, err := wire.ParseFrame(frame)
	if err != nil {
		return err
	}
	f.mu.Lock()
	sent := sentFrame{fields: fields, addr: addr}
	f.history = append(f.history, sent)
	f.queue = append(f.queue, sent)
	muted := f.muted[fields.Type()]
	f.mu.Unlock()

	if !muted && f.waiters != nil {
		if id := fields.MessageID(); id != "" {
			f.waiters.Resolve(id)
		}
	}
	return nil
}

func (f *fakeWire) Broadcast(frame []byte) error {
	return f.Send(frame, &net.UDPAddr{IP: net.IPv4bcast, Port: limits.DefaultPort})
}

func (f *fakeWire) Close() error { return nil }

func (f *fakeWire) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: limits.DefaultPort}
}

// take drains the undelivered queue in send order.
func (f *fakeWire) take() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.queue
	f.queue = nil
	return out
}

// countOf tallies every frame of the given type ever sent.
func (f *fakeWire) countOf(t wire.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sent := range f.history {
		if sent.fields.Type() == t {
			n++
		}
	}
	return n
}

// lastOf returns the most recent frame of the given type.
func (f *fakeWire) lastOf(t wire.MessageType) (sentFrame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].fields.Type() == t {
			return f.history[i], true
		}
	}
	return sentFrame{}, false
}
