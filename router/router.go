// Package router dispatches inbound datagrams through the fixed LSNP
// receive pipeline: frame parse, fast paths for ACK and REVOKE, source
// consistency, token validation, duplicate suppression, auto-ACK, then the
// registered per-type handler. Stages are ordered so that no handler ever
// sees an unauthenticated or duplicate message, and so that ACKs for
// reliable types go out even when the handler later drops the message for
// logical reasons.
package router

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/dedup"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/transport"
	"github.com/lsnp-net/lsnp/wire"
)

// Handler processes one fully validated, deduplicated, typed message.
// Returned errors are logged, never answered on the wire.
type Handler func(msg wire.Message, src *net.UDPAddr) error

// Config carries the router's collaborators.
type Config struct {
	Authority *auth.Authority
	Dedup     *dedup.Cache
	Peers     *peer.Directory
	Waiters   *reliable.Waiters
	Transport transport.Transport

	// AckPort is the well-known port ACKs are addressed to, regardless of
	// the ephemeral source port a datagram arrived from.
	AckPort int

	// SelfID suppresses our own broadcasts when they loop back.
	SelfID string
}

// Router routes datagrams to handlers. Safe for concurrent use, though the
// transport drives it from a single goroutine.
type Router struct {
	mu       sync.RWMutex
	handlers map[wire.MessageType]Handler
	cfg      Config
}

// New creates a Router with no handlers registered.
func New(cfg Config) *Router {
	return &Router{
		handlers: make(map[wire.MessageType]Handler),
		cfg:      cfg,
	}
}

// Register installs the handler for one message type, replacing any
// previous registration.
func (r *Router) Register(t wire.MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// HandleDatagram runs the full pipeline for one datagram. It is the
// transport.Receiver for the node.
func (r *Router) HandleDatagram(data []byte, src *net.UDPAddr) {
	fields, err := wire.ParseFrame(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"src":      src,
			"error":    err,
		}).Debug("Discarding unparsable datagram")
		return
	}

	msgType := fields.Type()
	if !wire.KnownType(msgType) {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"src":      src,
			"type":     string(msgType),
		}).Debug("Discarding unknown message type")
		return
	}

	sender := fields.Sender()
	if sender != "" && sender == r.cfg.SelfID {
		// Our own broadcast looped back.
		return
	}

	switch msgType {
	case wire.TypeAck:
		r.handleAck(fields)
		return
	case wire.TypeRevoke:
		r.handleRevoke(fields, src)
		return
	}

	scope, tokenRequired := wire.RequiredScope(msgType)

	if !auth.ConsistentSource(sender, src.IP) {
		if tokenRequired {
			logrus.WithFields(logrus.Fields{
				"function": "HandleDatagram",
				"type":     string(msgType),
				"sender":   sender,
				"src":      src.IP,
			}).Warn("Dropping message with spoofed source address")
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"type":     string(msgType),
			"sender":   sender,
			"src":      src.IP,
		}).Debug("Source address differs from declared identity")
	}

	if tokenRequired {
		ok, reason := r.cfg.Authority.Validate(fields.Token(), scope)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "HandleDatagram",
				"type":     string(msgType),
				"sender":   sender,
				"reason":   string(reason),
			}).Warn("Dropping message with invalid token")
			return
		}
	}

	if sender != "" {
		r.cfg.Peers.Upsert(sender, src.IP)
	}

	messageID := fields.MessageID()
	if r.cfg.Dedup.Seen(messageID) {
		// Duplicates are re-ACKed so the sender stops retrying, but the
		// handler never runs twice.
		if wire.Reliable(msgType) {
			r.sendAck(messageID, src)
		}
		logrus.WithFields(logrus.Fields{
			"function":   "HandleDatagram",
			"type":       string(msgType),
			"message_id": messageID,
		}).Debug("Suppressing duplicate message")
		return
	}

	if wire.Reliable(msgType) && messageID != "" {
		r.sendAck(messageID, src)
	}

	msg, err := wire.Decode(fields)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"type":     string(msgType),
			"sender":   sender,
			"error":    err,
		}).Debug("Discarding message with missing or invalid fields")
		return
	}

	r.mu.RLock()
	handler, exists := r.handlers[msgType]
	r.mu.RUnlock()
	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"type":     string(msgType),
		}).Debug("No handler registered")
		return
	}

	if err := handler(msg, src); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"type":     string(msgType),
			"sender":   sender,
			"error":    err,
		}).Debug("Handler dropped message")
	}
}

// handleAck resolves the waiter for an acknowledged message. ACKs are never
// deduplicated or answered; resolving twice is already a no-op.
func (r *Router) handleAck(fields wire.Fields) {
	messageID := fields.MessageID()
	if messageID == "" {
		return
	}
	if r.cfg.Waiters.Resolve(messageID) {
		logrus.WithFields(logrus.Fields{
			"function":   "handleAck",
			"message_id": messageID,
		}).Debug("ACK resolved pending send")
	}
}

// handleRevoke processes a token withdrawal. The token itself is the dedup
// key since REVOKE carries no MESSAGE_ID. A revocation is honored only when
// the datagram source matches the address inside the token's identity, so
// one peer cannot evict another's tokens.
func (r *Router) handleRevoke(fields wire.Fields, src *net.UDPAddr) {
	raw := fields.Token()
	if raw == "" {
		return
	}

	token, err := auth.ParseToken(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleRevoke",
			"src":      src.IP,
			"error":    err,
		}).Debug("Discarding malformed revocation")
		return
	}
	if !auth.ConsistentSource(token.Identity, src.IP) {
		logrus.WithFields(logrus.Fields{
			"function": "handleRevoke",
			"identity": token.Identity,
			"src":      src.IP,
		}).Warn("Dropping revocation from mismatched source")
		return
	}

	// Recorded only after the source check, so a rejected spoof cannot
	// mask the real revocation that follows it.
	if r.cfg.Dedup.Seen("revoke|" + raw) {
		return
	}

	if err := r.cfg.Authority.Revoke(raw); err != nil {
		return
	}
	r.cfg.Peers.Remove(token.Identity)
}

// sendAck confirms one reliable message back to its sender's declared
// listening port.
func (r *Router) sendAck(messageID string, src *net.UDPAddr) {
	ack := &wire.Ack{MessageID: messageID, Status: wire.AckStatusReceived}
	target := &net.UDPAddr{IP: src.IP, Port: r.cfg.AckPort}
	if err := r.cfg.Transport.Send(ack.Encode(), target); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "sendAck",
			"message_id": messageID,
			"target":     target,
			"error":      err,
		}).Debug("Failed to send ACK")
	}
}
