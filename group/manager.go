package group

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/wire"
)

// CreatedCallback observes groups announced to us.
type CreatedCallback func(g Group)

// UpdatedCallback observes membership changes.
type UpdatedCallback func(g Group)

// MessageCallback observes group chat messages as they are recorded.
type MessageCallback func(msg Message)

// Config carries the manager's collaborators.
type Config struct {
	SelfID string

	// DisplayName labels our own messages; the username part of SelfID
	// when empty.
	DisplayName string

	Port      int
	Authority *auth.Authority
	Peers     *peer.Directory
	Sender    *reliable.Sender
}

// Manager owns group membership and chat history. Every group operation
// fans out as reliable unicasts to the membership; each recipient gets its
// own message id so one member's ACK cannot satisfy another's wait.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	displayName string
	groups      map[string]*groupEntry
	history     map[string][]Message

	onCreated CreatedCallback
	onUpdated UpdatedCallback
	onMessage MessageCallback
}

// NewManager creates a group manager.
func NewManager(cfg Config) *Manager {
	name := cfg.DisplayName
	if name == "" {
		name = wire.Username(cfg.SelfID)
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
		"self_id":  cfg.SelfID,
	}).Debug("Creating group manager")

	return &Manager{
		cfg:         cfg,
		displayName: name,
		groups:      make(map[string]*groupEntry),
		history:     make(map[string][]Message),
	}
}

// SetDisplayName changes the name attached to future messages.
func (m *Manager) SetDisplayName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		m.displayName = name
	}
}

// OnCreated sets the callback for announced groups.
func (m *Manager) OnCreated(cb CreatedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCreated = cb
}

// OnUpdated sets the callback for membership changes.
func (m *Manager) OnUpdated(cb UpdatedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdated = cb
}

// OnMessage sets the callback for recorded group messages.
func (m *Manager) OnMessage(cb MessageCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = cb
}

// Create announces a new group to its members. The creator is always part
// of the membership; the announcement carries the full resolved member
// list. Returns the created group and the first delivery error, if any.
func (m *Manager) Create(ctx context.Context, id, name string, members []string) (Group, error) {
	if id == "" || name == "" {
		return Group{}, ErrInvalidGroup
	}

	now := time.Now().Unix()
	m.mu.Lock()
	entry := newGroupEntry(id, name, m.cfg.SelfID, members, now)
	m.groups[id] = entry
	snap := entry.snapshot()
	recipients := entry.others(m.cfg.SelfID)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Create",
		"group_id": id,
		"name":     name,
		"members":  len(snap.Members),
	}).Info("Group created")

	token := m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGroup, limits.DefaultTokenTTL)
	err := m.fanOut(ctx, recipients, func(messageID string) []byte {
		return (&wire.GroupCreate{
			From:      m.cfg.SelfID,
			GroupID:   id,
			GroupName: name,
			Members:   snap.Members,
			Timestamp: now,
			MessageID: messageID,
			Token:     token,
		}).Encode()
	})
	return snap, err
}

// Update changes a group's membership and tells the updated membership.
// Members removed by the update are not notified.
func (m *Manager) Update(ctx context.Context, id string, add, remove []string) (Group, error) {
	m.mu.Lock()
	entry, ok := m.groups[id]
	if !ok {
		m.mu.Unlock()
		return Group{}, ErrUnknownGroup
	}
	if !entry.has(m.cfg.SelfID) {
		m.mu.Unlock()
		return Group{}, ErrNotMember
	}
	entry.apply(add, remove)
	snap := entry.snapshot()
	recipients := entry.others(m.cfg.SelfID)
	now := time.Now().Unix()
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Update",
		"group_id": id,
		"added":    len(add),
		"removed":  len(remove),
	}).Info("Group membership updated")

	token := m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGroup, limits.DefaultTokenTTL)
	err := m.fanOut(ctx, recipients, func(messageID string) []byte {
		return (&wire.GroupUpdate{
			From:      m.cfg.SelfID,
			GroupID:   id,
			Add:       add,
			Remove:    remove,
			Timestamp: now,
			MessageID: messageID,
			Token:     token,
		}).Encode()
	})
	return snap, err
}

// Send delivers a chat message to every other member and records it in
// the group's history. The attempt is recorded even when some deliveries
// fail; the first failure is returned.
func (m *Manager) Send(ctx context.Context, id, content string) (Message, error) {
	if content == "" {
		return Message{}, ErrEmptyContent
	}

	m.mu.Lock()
	entry, ok := m.groups[id]
	if !ok {
		m.mu.Unlock()
		return Message{}, ErrUnknownGroup
	}
	if !entry.has(m.cfg.SelfID) {
		m.mu.Unlock()
		return Message{}, ErrNotMember
	}
	recipients := entry.others(m.cfg.SelfID)
	msg := Message{
		From:        m.cfg.SelfID,
		GroupID:     id,
		DisplayName: m.displayName,
		Content:     content,
		Timestamp:   time.Now().Unix(),
	}
	m.mu.Unlock()

	token := m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGroup, limits.DefaultTokenTTL)
	err := m.fanOut(ctx, recipients, func(messageID string) []byte {
		return (&wire.GroupMessage{
			From:      m.cfg.SelfID,
			GroupID:   id,
			Content:   content,
			Timestamp: msg.Timestamp,
			MessageID: messageID,
			Token:     token,
		}).Encode()
	})

	m.mu.Lock()
	m.history[id] = append(m.history[id], msg)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Send",
		"group_id":   id,
		"recipients": len(recipients),
	}).Info("Group message sent")
	return msg, err
}

// fanOut sends one frame per recipient, each under a fresh message id.
func (m *Manager) fanOut(ctx context.Context, recipients []string, build func(messageID string) []byte) error {
	var firstErr error
	for _, member := range recipients {
		addr, err := m.cfg.Peers.ResolveAddr(member, m.cfg.Port)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "fanOut",
				"member":   member,
				"error":    err,
			}).Warn("Cannot resolve group member")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		messageID := wire.NewMessageID()
		if err := m.cfg.Sender.SendReliable(ctx, build(messageID), addr, messageID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "fanOut",
				"member":     member,
				"message_id": messageID,
			}).Warn("Group delivery not acknowledged")
			if firstErr == nil {
				firstErr = fmt.Errorf("deliver to %s: %w", member, err)
			}
		}
	}
	return firstErr
}

// Group returns a snapshot of one group.
func (m *Manager) Group(id string) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.groups[id]
	if !ok {
		return Group{}, false
	}
	return entry.snapshot(), true
}

// Groups returns every known group, ordered by id.
func (m *Manager) Groups() []Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, 0, len(m.groups))
	for _, entry := range m.groups {
		out = append(out, entry.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Messages returns a group's chat history, oldest first.
func (m *Manager) Messages(id string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history[id]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// HandleCreate records a group announced by a peer. A repeated
// announcement replaces the stored group.
func (m *Manager) HandleCreate(msg wire.Message, src *net.UDPAddr) error {
	create, ok := msg.(*wire.GroupCreate)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	entry := newGroupEntry(create.GroupID, create.GroupName, create.From, create.Members, create.Timestamp)
	m.groups[create.GroupID] = entry
	snap := entry.snapshot()
	cb := m.onCreated
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleCreate",
		"group_id": create.GroupID,
		"creator":  create.From,
		"members":  len(snap.Members),
	}).Info("Group announced")

	if cb != nil {
		cb(snap)
	}
	return nil
}

// HandleUpdate applies a membership change from an existing member.
func (m *Manager) HandleUpdate(msg wire.Message, src *net.UDPAddr) error {
	update, ok := msg.(*wire.GroupUpdate)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	entry, exists := m.groups[update.GroupID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGroup, update.GroupID)
	}
	if !entry.has(update.From) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in %s", ErrNotMember, update.From, update.GroupID)
	}
	entry.apply(update.Add, update.Remove)
	snap := entry.snapshot()
	cb := m.onUpdated
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleUpdate",
		"group_id": update.GroupID,
		"from":     update.From,
	}).Info("Group membership changed")

	if cb != nil {
		cb(snap)
	}
	return nil
}

// HandleMessage records a chat message from a group member. Messages for
// unknown groups or from non-members are dropped.
func (m *Manager) HandleMessage(msg wire.Message, src *net.UDPAddr) error {
	gm, ok := msg.(*wire.GroupMessage)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	entry, exists := m.groups[gm.GroupID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGroup, gm.GroupID)
	}
	if !entry.has(gm.From) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in %s", ErrNotMember, gm.From, gm.GroupID)
	}
	recorded := Message{
		From:        gm.From,
		GroupID:     gm.GroupID,
		DisplayName: m.peerDisplayName(gm.From),
		Content:     gm.Content,
		Timestamp:   gm.Timestamp,
	}
	m.history[gm.GroupID] = append(m.history[gm.GroupID], recorded)
	cb := m.onMessage
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleMessage",
		"group_id": gm.GroupID,
		"from":     gm.From,
	}).Info("Group message received")

	if cb != nil {
		cb(recorded)
	}
	return nil
}

// peerDisplayName resolves the best known name for an identity.
func (m *Manager) peerDisplayName(identity string) string {
	if p, ok := m.cfg.Peers.Get(identity); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return wire.Username(identity)
}
