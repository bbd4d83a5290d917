package peer

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lsnp-net/lsnp/limits"
)

// mockTimeProvider allows deterministic time control in tests.
type mockTimeProvider struct {
	mu      sync.Mutex
	current time.Time
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{current: time.Unix(1754000000, 0)}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func newTestDirectory() (*Directory, *mockTimeProvider) {
	directory := NewDirectory()
	clock := newMockTimeProvider()
	directory.SetTimeProvider(clock)
	return directory, clock
}

func TestUpsertCreatesAndRefreshes(t *testing.T) {
	directory, clock := newTestDirectory()
	ip := net.IPv4(192, 168, 1, 10)

	if isNew := directory.Upsert("alice@192.168.1.10", ip); !isNew {
		t.Error("first Upsert() = false, want true")
	}
	if isNew := directory.Upsert("alice@192.168.1.10", ip); isNew {
		t.Error("second Upsert() = true, want false")
	}

	first, ok := directory.Get("alice@192.168.1.10")
	if !ok {
		t.Fatal("Get() missing after Upsert")
	}
	clock.advance(10 * time.Second)
	directory.Upsert("alice@192.168.1.10", ip)
	second, _ := directory.Get("alice@192.168.1.10")
	if !second.LastSeen.After(first.LastSeen) {
		t.Error("Upsert did not refresh LastSeen")
	}
}

func TestUpsertIgnoresEmptyIdentity(t *testing.T) {
	directory, _ := newTestDirectory()
	if directory.Upsert("", net.IPv4(10, 0, 0, 1)) {
		t.Error("Upsert(\"\") = true")
	}
	if directory.Count() != 0 {
		t.Errorf("Count() = %d, want 0", directory.Count())
	}
}

func TestActiveWindow(t *testing.T) {
	directory, clock := newTestDirectory()

	directory.Upsert("alice@192.168.1.10", net.IPv4(192, 168, 1, 10))
	clock.advance(limits.PeerActiveWindow / 2)
	directory.Upsert("bob@192.168.1.11", net.IPv4(192, 168, 1, 11))

	active := directory.Active("")
	if len(active) != 2 {
		t.Fatalf("Active() = %d peers, want 2", len(active))
	}

	// Move past alice's window but not bob's.
	clock.advance(limits.PeerActiveWindow/2 + time.Second)
	active = directory.Active("")
	if len(active) != 1 || active[0].Identity != "bob@192.168.1.11" {
		t.Errorf("Active() = %v, want only bob", active)
	}

	// Silent peers age out of Active but stay in All.
	clock.advance(limits.PeerActiveWindow)
	if len(directory.Active("")) != 0 {
		t.Error("Active() non-empty after both windows elapsed")
	}
	if len(directory.All()) != 2 {
		t.Errorf("All() = %d peers, want 2", len(directory.All()))
	}
}

func TestActiveExcludesSelf(t *testing.T) {
	directory, _ := newTestDirectory()
	directory.Upsert("self@192.168.1.5", net.IPv4(192, 168, 1, 5))
	directory.Upsert("alice@192.168.1.10", net.IPv4(192, 168, 1, 10))

	active := directory.Active("self@192.168.1.5")
	if len(active) != 1 || active[0].Identity != "alice@192.168.1.10" {
		t.Errorf("Active(self) = %v, want only alice", active)
	}
}

func TestSetProfileAndNameFallback(t *testing.T) {
	directory, _ := newTestDirectory()

	// Profile can arrive before any other traffic.
	directory.SetProfile("alice@192.168.1.10", "Alice", "studying")
	p, ok := directory.Get("alice@192.168.1.10")
	if !ok {
		t.Fatal("Get() missing after SetProfile")
	}
	if p.Name() != "Alice" || p.Status != "studying" {
		t.Errorf("profile = %q/%q", p.Name(), p.Status)
	}

	// Without a profile the username part serves as the name.
	directory.Upsert("bob@192.168.1.11", net.IPv4(192, 168, 1, 11))
	p, _ = directory.Get("bob@192.168.1.11")
	if p.Name() != "bob" {
		t.Errorf("Name() = %q, want bob", p.Name())
	}
}

func TestRemove(t *testing.T) {
	directory, _ := newTestDirectory()
	directory.Upsert("alice@192.168.1.10", net.IPv4(192, 168, 1, 10))
	directory.Remove("alice@192.168.1.10")
	if _, ok := directory.Get("alice@192.168.1.10"); ok {
		t.Error("Get() found peer after Remove")
	}
	// Removing an absent peer is a no-op.
	directory.Remove("ghost@10.0.0.1")
}

func TestResolveAddr(t *testing.T) {
	directory, _ := newTestDirectory()
	directory.Upsert("alice@192.168.1.10", net.IPv4(10, 9, 8, 7))

	// Directory address wins over the identity literal.
	addr, err := directory.ResolveAddr("alice@192.168.1.10", limits.DefaultPort)
	if err != nil {
		t.Fatalf("ResolveAddr() error: %v", err)
	}
	if !addr.IP.Equal(net.IPv4(10, 9, 8, 7)) || addr.Port != limits.DefaultPort {
		t.Errorf("ResolveAddr() = %v", addr)
	}

	// Unknown peers fall back to the embedded identity address.
	addr, err = directory.ResolveAddr("carol@192.168.1.12", limits.DefaultPort)
	if err != nil {
		t.Fatalf("ResolveAddr() fallback error: %v", err)
	}
	if !addr.IP.Equal(net.IPv4(192, 168, 1, 12)) {
		t.Errorf("ResolveAddr() fallback IP = %v", addr.IP)
	}

	// No entry and no embedded address is unresolvable.
	if _, err := directory.ResolveAddr("nowhere", limits.DefaultPort); err == nil {
		t.Error("ResolveAddr(nowhere) succeeded, want error")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	directory, _ := newTestDirectory()
	directory.Upsert("alice@192.168.1.10", net.IPv4(192, 168, 1, 10))

	p, _ := directory.Get("alice@192.168.1.10")
	p.DisplayName = "mutated"

	fresh, _ := directory.Get("alice@192.168.1.10")
	if fresh.DisplayName == "mutated" {
		t.Error("Get() returned a live reference, want a copy")
	}
}
