// Package peer maintains the directory of known LSNP peers.
//
// Peers are discovered passively: any message that carries a sender
// identity refreshes that peer's entry and last-seen time. A peer heard
// from within the active window counts as online; silent peers age out of
// listings without ever being deleted, so their profile data survives a
// missed beacon.
//
// Example:
//
//	d := peer.NewDirectory()
//	d.Upsert("alice@192.168.1.10", net.IPv4(192, 168, 1, 10))
//	for _, p := range d.Active("") {
//	    fmt.Println(p.Identity, p.DisplayName)
//	}
package peer

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/wire"
)

// ErrUnknownPeer indicates an identity with no directory entry and no
// resolvable embedded address.
var ErrUnknownPeer = errors.New("unknown peer")

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Peer is one known participant. DisplayName and Status come from the
// peer's PROFILE broadcasts and may lag behind reality.
type Peer struct {
	Identity    string
	IP          net.IP
	DisplayName string
	Status      string
	LastSeen    time.Time
}

// Name returns the peer's display name, falling back to the username part
// of the identity when no PROFILE has been seen yet.
func (p Peer) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return wire.Username(p.Identity)
}

// Directory is the mutex-guarded peer table. Safe for concurrent use.
type Directory struct {
	mu           sync.Mutex
	peers        map[string]*Peer
	window       time.Duration
	timeProvider TimeProvider
}

// NewDirectory creates an empty directory using the standard active window.
func NewDirectory() *Directory {
	return &Directory{
		peers:        make(map[string]*Peer),
		window:       limits.PeerActiveWindow,
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (d *Directory) SetTimeProvider(tp TimeProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tp != nil {
		d.timeProvider = tp
	}
}

// Upsert refreshes a peer's address and last-seen time, creating the entry
// on first contact. Reports whether the peer was new.
func (d *Directory) Upsert(identity string, ip net.IP) bool {
	if identity == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.peers[identity]
	if !exists {
		entry = &Peer{Identity: identity}
		d.peers[identity] = entry
		logrus.WithFields(logrus.Fields{
			"function": "Upsert",
			"identity": identity,
			"ip":       ip,
		}).Debug("New peer discovered")
	}
	if ip != nil {
		entry.IP = ip
	}
	entry.LastSeen = d.timeProvider.Now()
	return !exists
}

// SetProfile stores the display name and status from a PROFILE broadcast.
// The entry is created if the profile arrives before any other traffic.
func (d *Directory) SetProfile(identity, displayName, status string) {
	if identity == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.peers[identity]
	if !exists {
		entry = &Peer{Identity: identity}
		d.peers[identity] = entry
	}
	entry.DisplayName = displayName
	entry.Status = status
	entry.LastSeen = d.timeProvider.Now()
}

// Get returns a snapshot of one peer.
func (d *Directory) Get(identity string) (Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.peers[identity]
	if !ok {
		return Peer{}, false
	}
	return *entry, true
}

// Remove deletes a peer, typically after it revoked its tokens on exit.
func (d *Directory) Remove(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[identity]; ok {
		delete(d.peers, identity)
		logrus.WithFields(logrus.Fields{
			"function": "Remove",
			"identity": identity,
		}).Info("Peer removed from directory")
	}
}

// Active returns snapshots of peers heard from within the active window,
// sorted by identity. exclude omits one identity, normally our own.
func (d *Directory) Active(exclude string) []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.timeProvider.Now().Add(-d.window)
	active := make([]Peer, 0, len(d.peers))
	for identity, entry := range d.peers {
		if identity == exclude {
			continue
		}
		if entry.LastSeen.Before(cutoff) {
			continue
		}
		active = append(active, *entry)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Identity < active[j].Identity })
	return active
}

// All returns snapshots of every known peer, active or not, sorted by
// identity.
func (d *Directory) All() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()

	peers := make([]Peer, 0, len(d.peers))
	for _, entry := range d.peers {
		peers = append(peers, *entry)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Identity < peers[j].Identity })
	return peers
}

// Count returns the number of known peers.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// ResolveAddr maps an identity to the UDP address unicast traffic should
// target: the directory address when the peer is known, otherwise the IPv4
// literal embedded in the identity itself. The port is always the
// well-known LSNP port, never a previously observed source port.
func (d *Directory) ResolveAddr(identity string, port int) (*net.UDPAddr, error) {
	d.mu.Lock()
	entry, ok := d.peers[identity]
	var ip net.IP
	if ok && entry.IP != nil {
		ip = entry.IP
	}
	d.mu.Unlock()

	if ip == nil {
		ip = wire.IdentityIP(identity)
	}
	if ip == nil {
		return nil, ErrUnknownPeer
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}
