// Package lsnp implements the Local Social Networking Protocol.
//
// LSNP is a serverless social network for a single LAN segment: peers
// announce themselves over UDP broadcast, exchange plaintext key-value
// frames on a well-known port, and authorize every action with scoped,
// expiring tokens. On top of that sit posts with likes, direct messages,
// a follow graph, named groups, chunked file transfer, and tic-tac-toe.
//
// Example:
//
//	options := lsnp.NewOptions()
//	options.Username = "alice"
//	options.DisplayName = "Alice"
//
//	node, err := lsnp.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	node.OnDM(func(msg messaging.ChatMessage) {
//	    fmt.Printf("%s: %s\n", msg.DisplayName, msg.Content)
//	})
//
//	node.Start()
//
//	if _, err := node.Messaging().Publish("hello, subnet"); err != nil {
//	    log.Println(err)
//	}
package lsnp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/dedup"
	"github.com/lsnp-net/lsnp/discovery"
	"github.com/lsnp-net/lsnp/file"
	"github.com/lsnp-net/lsnp/game"
	"github.com/lsnp-net/lsnp/group"
	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/messaging"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/router"
	"github.com/lsnp-net/lsnp/transport"
	"github.com/lsnp-net/lsnp/wire"
)

// ErrMissingUsername indicates Options without the one field that has no
// sensible default.
var ErrMissingUsername = errors.New("username is required")

// Options configures a Node. Zero values fall back to the defaults from
// NewOptions; only Username must always be provided.
type Options struct {
	// Username forms the node identity together with the detected local
	// IPv4 address, e.g. "alice" on 192.168.1.10 becomes
	// "alice@192.168.1.10".
	Username string `env:"LSNP_USERNAME"`

	// DisplayName is announced in PROFILE broadcasts and attached to
	// outgoing posts and messages. Defaults to Username.
	DisplayName string `env:"LSNP_DISPLAY_NAME"`

	// Status is the free-form presence line announced alongside the name.
	Status string `env:"LSNP_STATUS"`

	// ListenAddr is the UDP bind address, normally ":50999". Every peer on
	// the segment must use the same port to hear each other.
	ListenAddr string `env:"LSNP_LISTEN_ADDR"`

	// DownloadDir receives assembled file transfers.
	DownloadDir string `env:"LSNP_DOWNLOAD_DIR"`

	// PresenceInterval is the gap between presence broadcast rounds.
	PresenceInterval time.Duration `env:"LSNP_PRESENCE_INTERVAL"`

	// MDNS additionally registers the node via multicast DNS, for networks
	// that filter directed UDP broadcasts.
	MDNS bool `env:"LSNP_MDNS"`

	// Verbose asks frontends to enable debug logging. The node itself
	// never touches the global log level.
	Verbose bool `env:"LSNP_VERBOSE"`
}

// NewOptions returns Options with the standard defaults.
func NewOptions() *Options {
	return &Options{
		ListenAddr:       fmt.Sprintf(":%d", limits.DefaultPort),
		DownloadDir:      "downloads",
		PresenceInterval: limits.PresenceInterval,
	}
}

// FromEnv overlays values from LSNP_* environment variables onto o and
// returns o for chaining. Unset variables leave fields untouched.
func (o *Options) FromEnv() *Options {
	// envdecode reports an error when no variable is set at all; already
	// having defaults, we don't care.
	_ = envdecode.Decode(o)
	return o
}

// Node is one LSNP participant: the bound transport, the receive pipeline,
// and a manager per protocol area. Create it with New, then Start it to
// begin announcing presence.
type Node struct {
	opts   *Options
	selfID string
	port   int

	transport *transport.UDPTransport
	authority *auth.Authority
	peers     *peer.Directory
	sender    *reliable.Sender
	router    *router.Router

	beacon *discovery.Beacon
	mdns   *discovery.MDNS

	social *messaging.Manager
	files  *file.Manager
	games  *game.Manager
	groups *group.Manager

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a Node bound to the configured address. The receive pipeline
// is live immediately; presence announcements wait for Start.
func New(options *Options) (*Node, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.Username == "" {
		return nil, ErrMissingUsername
	}
	listenAddr := options.ListenAddr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", limits.DefaultPort)
	}

	udp, err := transport.NewUDPTransport(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("bind transport: %w", err)
	}

	bound := udp.LocalAddr().(*net.UDPAddr)
	port := bound.Port
	if port == 0 {
		port = limits.DefaultPort
	}
	selfID := wire.NewIdentity(options.Username, transport.LocalIP())

	authority := auth.NewAuthority()
	peers := peer.NewDirectory()
	waiters := reliable.NewWaiters()
	sender := reliable.NewSender(udp, waiters)

	rt := router.New(router.Config{
		Authority: authority,
		Dedup:     dedup.NewCache(limits.DedupCapacity),
		Peers:     peers,
		Waiters:   waiters,
		Transport: udp,
		AckPort:   port,
		SelfID:    selfID,
	})

	ctx, cancel := context.WithCancel(context.Background())

	node := &Node{
		opts:      options,
		selfID:    selfID,
		port:      port,
		transport: udp,
		authority: authority,
		peers:     peers,
		sender:    sender,
		router:    rt,
		ctx:       ctx,
		cancel:    cancel,
	}

	node.beacon = discovery.NewBeacon(discovery.Config{
		SelfID:      selfID,
		DisplayName: options.DisplayName,
		Status:      options.Status,
		Interval:    options.PresenceInterval,
		Peers:       peers,
		Transport:   udp,
	})
	if options.MDNS {
		node.mdns = discovery.NewMDNS(discovery.MDNSConfig{
			SelfID: selfID,
			Port:   port,
			Peers:  peers,
		})
	}

	node.social = messaging.NewManager(messaging.Config{
		SelfID:      selfID,
		DisplayName: options.DisplayName,
		Port:        port,
		Authority:   authority,
		Peers:       peers,
		Sender:      sender,
		Transport:   udp,
	})
	node.files = file.NewManager(file.Config{
		SelfID:      selfID,
		Port:        port,
		DownloadDir: options.DownloadDir,
		Authority:   authority,
		Peers:       peers,
		Sender:      sender,
		Transport:   udp,
	})
	node.games = game.NewManager(game.Config{
		SelfID:    selfID,
		Port:      port,
		Authority: authority,
		Peers:     peers,
		Sender:    sender,
	})
	node.groups = group.NewManager(group.Config{
		SelfID:      selfID,
		DisplayName: options.DisplayName,
		Port:        port,
		Authority:   authority,
		Peers:       peers,
		Sender:      sender,
	})

	node.registerHandlers()
	udp.SetReceiver(rt.HandleDatagram)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"self":     selfID,
		"addr":     bound,
	}).Info("Node ready")
	return node, nil
}

// registerHandlers wires every message type to its manager. ACK and REVOKE
// are consumed inside the router and never reach a handler.
func (n *Node) registerHandlers() {
	n.router.Register(wire.TypePing, n.beacon.HandlePing)
	n.router.Register(wire.TypeProfile, n.beacon.HandleProfile)

	n.router.Register(wire.TypePost, n.social.HandlePost)
	n.router.Register(wire.TypeLike, n.social.HandleLike)
	n.router.Register(wire.TypeDM, n.social.HandleDM)
	n.router.Register(wire.TypeFollow, n.social.HandleFollow)
	n.router.Register(wire.TypeUnfollow, n.social.HandleUnfollow)

	n.router.Register(wire.TypeFileOffer, n.files.HandleOffer)
	n.router.Register(wire.TypeFileAccept, n.files.HandleAccept)
	n.router.Register(wire.TypeFileReject, n.files.HandleReject)
	n.router.Register(wire.TypeFileChunk, n.files.HandleChunk)
	n.router.Register(wire.TypeFileReceived, n.files.HandleReceived)

	n.router.Register(wire.TypeGameInvite, n.games.HandleInvite)
	n.router.Register(wire.TypeGameMove, n.games.HandleMove)
	n.router.Register(wire.TypeGameResult, n.games.HandleResult)

	n.router.Register(wire.TypeGroupCreate, n.groups.HandleCreate)
	n.router.Register(wire.TypeGroupUpdate, n.groups.HandleUpdate)
	n.router.Register(wire.TypeGroupMessage, n.groups.HandleMessage)
}

// Start begins presence announcements. mDNS registration failure is logged
// and ignored; broadcast presence carries on without it.
func (n *Node) Start() {
	n.beacon.Start()
	if n.mdns != nil {
		if err := n.mdns.Start(n.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Start",
				"error":    err,
			}).Warn("mDNS registration failed, continuing with broadcast only")
		}
	}
}

// Stop revokes every token issued this session, withdraws presence, and
// releases the transport. Safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.revokeIssued()
		n.beacon.Stop()
		if n.mdns != nil {
			n.mdns.Stop()
		}
		n.files.Close()
		n.cancel()
		if err := n.transport.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Stop",
				"error":    err,
			}).Warn("Transport close failed")
		}
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"self":     n.selfID,
		}).Info("Node stopped")
	})
}

// revokeIssued broadcasts a REVOKE for every token this session minted, so
// peers stop honoring them ahead of their natural expiry.
func (n *Node) revokeIssued() {
	issued := n.authority.Issued()
	for _, token := range issued {
		revoke := &wire.Revoke{Token: token}
		if err := n.transport.Broadcast(revoke.Encode()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "revokeIssued",
				"error":    err,
			}).Warn("Failed to broadcast revocation")
			return
		}
	}
	if len(issued) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "revokeIssued",
			"count":    len(issued),
		}).Info("Session tokens revoked")
	}
}

// SelfID returns this node's identity, "username@ip".
func (n *Node) SelfID() string { return n.selfID }

// Addr returns the bound UDP address.
func (n *Node) Addr() net.Addr { return n.transport.LocalAddr() }

// Port returns the port unicast replies are addressed to.
func (n *Node) Port() int { return n.port }

// SetProfile changes the announced display name and status everywhere at
// once: presence broadcasts, outgoing posts, and group messages.
func (n *Node) SetProfile(displayName, status string) {
	n.beacon.SetProfile(displayName, status)
	n.social.SetDisplayName(displayName)
	n.groups.SetDisplayName(displayName)
}

// Messaging exposes posts, likes, follows, and direct messages.
func (n *Node) Messaging() *messaging.Manager { return n.social }

// Files exposes chunked file transfer.
func (n *Node) Files() *file.Manager { return n.files }

// Games exposes tic-tac-toe sessions.
func (n *Node) Games() *game.Manager { return n.games }

// Groups exposes named group chat.
func (n *Node) Groups() *group.Manager { return n.groups }

// Peers exposes the peer directory.
func (n *Node) Peers() *peer.Directory { return n.peers }

// Presence exposes the beacon, mainly for its callbacks.
func (n *Node) Presence() *discovery.Beacon { return n.beacon }

// OnPeer sets the callback for newly discovered peers.
func (n *Node) OnPeer(cb discovery.PeerCallback) { n.beacon.OnPeer(cb) }

// OnDM sets the callback for incoming direct messages.
func (n *Node) OnDM(cb messaging.DMCallback) { n.social.OnDM(cb) }

// OnPost sets the callback for incoming posts.
func (n *Node) OnPost(cb messaging.PostCallback) { n.social.OnPost(cb) }

// OnFileOffer sets the callback for incoming file offers.
func (n *Node) OnFileOffer(cb file.OfferCallback) { n.files.OnOffer(cb) }

// OnGameInvite sets the callback for incoming game invitations.
func (n *Node) OnGameInvite(cb game.InviteCallback) { n.games.OnInvite(cb) }

// OnGameFinished sets the callback for games reaching a terminal state.
func (n *Node) OnGameFinished(cb game.FinishedCallback) { n.games.OnFinished(cb) }

// OnFileReceived sets the callback for fully assembled incoming files.
func (n *Node) OnFileReceived(cb file.ReceivedCallback) { n.files.OnReceived(cb) }

// OnGroupMessage sets the callback for incoming group messages.
func (n *Node) OnGroupMessage(cb group.MessageCallback) { n.groups.OnMessage(cb) }
