package discovery

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/transport"
	"github.com/lsnp-net/lsnp/wire"
)

// ErrUnexpectedMessage indicates a handler received a message type it does
// not own.
var ErrUnexpectedMessage = errors.New("unexpected message type")

// PeerCallback fires when a PING reveals a peer not seen before.
type PeerCallback func(identity string)

// ProfileCallback fires when a PROFILE broadcast updates a peer's entry.
type ProfileCallback func(p peer.Peer)

// Config carries the beacon's identity and collaborators.
type Config struct {
	// SelfID is our own identity, announced in every beacon.
	SelfID string

	// DisplayName and Status seed the PROFILE broadcast. Both may change
	// later through SetProfile.
	DisplayName string
	Status      string

	// Interval between presence rounds. Zero means the standard interval.
	Interval time.Duration

	Peers     *peer.Directory
	Transport transport.Transport
}

// Beacon announces our presence on the local network and records the
// presence of others. Each round broadcasts a PING and a PROFILE; a profile
// change triggers an immediate extra round so peers are not left reading a
// stale name for up to a full interval.
type Beacon struct {
	mu          sync.Mutex
	cfg         Config
	displayName string
	status      string

	onPeer    PeerCallback
	onProfile ProfileCallback

	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewBeacon creates a Beacon. Start must be called before any announcements
// go out.
func NewBeacon(cfg Config) *Beacon {
	if cfg.Interval <= 0 {
		cfg.Interval = limits.PresenceInterval
	}
	name := cfg.DisplayName
	if name == "" {
		name = wire.Username(cfg.SelfID)
	}
	return &Beacon{
		cfg:         cfg,
		displayName: name,
		status:      cfg.Status,
		stop:        make(chan struct{}),
	}
}

// OnPeer sets the new-peer callback.
func (b *Beacon) OnPeer(cb PeerCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPeer = cb
}

// OnProfile sets the profile-update callback.
func (b *Beacon) OnProfile(cb ProfileCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onProfile = cb
}

// Start announces immediately and then keeps announcing on the configured
// interval until Stop is called. Calling Start twice is a no-op.
func (b *Beacon) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.announce()
	go b.loop()
}

// Stop ends the announcement loop. Safe to call more than once.
func (b *Beacon) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// SetProfile updates the announced display name and status and replays the
// PROFILE broadcast right away. Empty values keep the current ones.
func (b *Beacon) SetProfile(displayName, status string) {
	b.mu.Lock()
	if displayName != "" {
		b.displayName = displayName
	}
	b.status = status
	started := b.started
	b.mu.Unlock()

	if started {
		b.announce()
	}
}

// Profile returns the display name and status currently being announced.
func (b *Beacon) Profile() (displayName, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.displayName, b.status
}

func (b *Beacon) loop() {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.announce()
		}
	}
}

// announce broadcasts one PING and one PROFILE round.
func (b *Beacon) announce() {
	b.mu.Lock()
	name, status := b.displayName, b.status
	b.mu.Unlock()

	ping := &wire.Ping{UserID: b.cfg.SelfID}
	if err := b.cfg.Transport.Broadcast(ping.Encode()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "announce",
			"error":    err,
		}).Warn("Failed to broadcast presence ping")
	}

	profile := &wire.Profile{
		UserID:      b.cfg.SelfID,
		DisplayName: name,
		Status:      status,
	}
	if err := b.cfg.Transport.Broadcast(profile.Encode()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "announce",
			"error":    err,
		}).Warn("Failed to broadcast profile")
	}

	logrus.WithFields(logrus.Fields{
		"function":     "announce",
		"self":         b.cfg.SelfID,
		"display_name": name,
	}).Debug("Presence announced")
}

// HandlePing records the sender as alive.
func (b *Beacon) HandlePing(msg wire.Message, src *net.UDPAddr) error {
	ping, ok := msg.(*wire.Ping)
	if !ok {
		return ErrUnexpectedMessage
	}

	isNew := b.cfg.Peers.Upsert(ping.UserID, src.IP)

	b.mu.Lock()
	cb := b.onPeer
	b.mu.Unlock()
	if isNew && cb != nil {
		cb(ping.UserID)
	}
	return nil
}

// HandleProfile records the sender's display name and status.
func (b *Beacon) HandleProfile(msg wire.Message, src *net.UDPAddr) error {
	profile, ok := msg.(*wire.Profile)
	if !ok {
		return ErrUnexpectedMessage
	}

	b.cfg.Peers.Upsert(profile.UserID, src.IP)
	b.cfg.Peers.SetProfile(profile.UserID, profile.DisplayName, profile.Status)

	logrus.WithFields(logrus.Fields{
		"function":     "HandleProfile",
		"peer":         profile.UserID,
		"display_name": profile.DisplayName,
	}).Debug("Profile updated")

	b.mu.Lock()
	cb := b.onProfile
	b.mu.Unlock()
	if cb != nil {
		if snapshot, ok := b.cfg.Peers.Get(profile.UserID); ok {
			cb(snapshot)
		}
	}
	return nil
}
