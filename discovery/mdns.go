package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/wire"
)

const (
	mdnsService = "_lsnp._udp"
	mdnsDomain  = "local."

	// identityKey tags the TXT record carrying the announcer's full LSNP
	// identity. mDNS instance names munge special characters, so the
	// identity travels in TXT where it survives verbatim.
	identityKey = "identity="
)

// MDNSConfig carries the mDNS announcer's identity and collaborators.
type MDNSConfig struct {
	SelfID string
	Port   int
	Peers  *peer.Directory
}

// MDNS registers the node as an mDNS service and browses for other nodes.
// It complements the UDP presence beacon: a host whose network filters
// directed broadcasts can still find peers through multicast DNS.
type MDNS struct {
	mu      sync.Mutex
	cfg     MDNSConfig
	server  *zeroconf.Server
	cancel  context.CancelFunc
	started bool
}

// NewMDNS creates an announcer. Start must be called to go on the air.
func NewMDNS(cfg MDNSConfig) *MDNS {
	return &MDNS{cfg: cfg}
}

// Start registers our service instance and begins browsing for others. The
// context bounds the browse; Stop also ends it.
func (m *MDNS) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	server, err := zeroconf.Register(
		wire.Username(m.cfg.SelfID),
		mdnsService,
		mdnsDomain,
		m.cfg.Port,
		[]string{identityKey + m.cfg.SelfID},
		nil,
	)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return fmt.Errorf("create mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry)
	go m.consume(entries)

	if err := resolver.Browse(browseCtx, mdnsService, mdnsDomain, entries); err != nil {
		cancel()
		server.Shutdown()
		return fmt.Errorf("browse mdns: %w", err)
	}

	m.server = server
	m.cancel = cancel
	m.started = true
	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"instance": wire.Username(m.cfg.SelfID),
		"service":  mdnsService,
	}).Info("mDNS presence registered")
	return nil
}

// Stop withdraws the service registration and ends browsing. Safe to call
// without a prior Start.
func (m *MDNS) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.cancel()
	m.server.Shutdown()
	m.server = nil
	m.started = false
}

// consume feeds browse results into the peer directory. The channel closes
// when the browse context ends.
func (m *MDNS) consume(entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		identity := identityFromText(entry.Text)
		if identity == "" || identity == m.cfg.SelfID {
			continue
		}
		ip := entryIP(entry)
		if ip == nil {
			continue
		}
		m.cfg.Peers.Upsert(identity, ip)
		logrus.WithFields(logrus.Fields{
			"function": "consume",
			"identity": identity,
			"ip":       ip,
		}).Debug("Peer found via mDNS")
	}
}

// identityFromText extracts the LSNP identity from a service's TXT records.
// Returns "" when no record carries a well-formed identity.
func identityFromText(text []string) string {
	for _, record := range text {
		if !strings.HasPrefix(record, identityKey) {
			continue
		}
		identity := strings.TrimPrefix(record, identityKey)
		if wire.IdentityIP(identity) == nil {
			return ""
		}
		return identity
	}
	return ""
}

// entryIP picks the address to record for a browsed service: the first
// advertised IPv4, falling back to the address inside the identity TXT when
// the entry advertises none.
func entryIP(entry *zeroconf.ServiceEntry) net.IP {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0]
	}
	return wire.IdentityIP(identityFromText(entry.Text))
}
