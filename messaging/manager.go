package messaging

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
	"github.com/lsnp-net/lsnp/transport"
	"github.com/lsnp-net/lsnp/wire"
)

// DMCallback observes direct messages as they are recorded.
type DMCallback func(msg ChatMessage)

// PostCallback observes posts entering the feed.
type PostCallback func(post FeedPost)

// LikeCallback observes reactions to feed posts.
type LikeCallback func(from, action string, post FeedPost)

// FollowCallback observes follow relationships forming and dissolving;
// following is true for FOLLOW and false for UNFOLLOW.
type FollowCallback func(from string, following bool)

// Config carries the manager's collaborators.
type Config struct {
	SelfID string

	// DisplayName labels our own posts and messages; the username part of
	// SelfID when empty.
	DisplayName string

	Port      int
	Authority *auth.Authority
	Peers     *peer.Directory
	Sender    *reliable.Sender
	Transport transport.Transport
}

// Manager owns the social state: the post feed with its likes, direct
// message history per correspondent, and both sides of the follow graph.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	displayName string
	feed        []*feedEntry
	history     map[string][]ChatMessage
	following   map[string]struct{}
	followers   map[string]struct{}

	onDM     DMCallback
	onPost   PostCallback
	onLike   LikeCallback
	onFollow FollowCallback
}

// NewManager creates a messaging manager.
func NewManager(cfg Config) *Manager {
	name := cfg.DisplayName
	if name == "" {
		name = wire.Username(cfg.SelfID)
	}
	logrus.WithFields(logrus.Fields{
		"function":     "NewManager",
		"self_id":      cfg.SelfID,
		"display_name": name,
	}).Debug("Creating messaging manager")

	return &Manager{
		cfg:         cfg,
		displayName: name,
		history:     make(map[string][]ChatMessage),
		following:   make(map[string]struct{}),
		followers:   make(map[string]struct{}),
	}
}

// SetDisplayName changes the name attached to future posts and messages.
func (m *Manager) SetDisplayName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		m.displayName = name
	}
}

// OnDM sets the callback for recorded direct messages.
func (m *Manager) OnDM(cb DMCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDM = cb
}

// OnPost sets the callback for posts entering the feed.
func (m *Manager) OnPost(cb PostCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPost = cb
}

// OnLike sets the callback for reactions to posts.
func (m *Manager) OnLike(cb LikeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLike = cb
}

// OnFollow sets the callback for follow and unfollow notices.
func (m *Manager) OnFollow(cb FollowCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFollow = cb
}

// Publish broadcasts a post and records it in the local feed. Own
// broadcasts are suppressed on receive, so the local copy is the only one.
func (m *Manager) Publish(content string) (FeedPost, error) {
	if content == "" {
		return FeedPost{}, ErrEmptyContent
	}

	now := time.Now().Unix()
	post := &wire.Post{
		UserID:    m.cfg.SelfID,
		Content:   content,
		TTL:       int64(limits.PostTTL / time.Second),
		Timestamp: now,
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeBroadcast, limits.PostTTL),
	}
	if err := m.cfg.Transport.Broadcast(post.Encode()); err != nil {
		return FeedPost{}, fmt.Errorf("broadcast post: %w", err)
	}

	m.mu.Lock()
	entry := &feedEntry{
		author:      m.cfg.SelfID,
		displayName: m.displayName,
		content:     content,
		timestamp:   now,
		ttl:         post.TTL,
		messageID:   post.MessageID,
		likes:       make(map[string]struct{}),
	}
	m.feed = append(m.feed, entry)
	snap := entry.snapshot()
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Publish",
		"message_id": post.MessageID,
		"ttl":        post.TTL,
	}).Info("Post broadcast")
	return snap, nil
}

// Like adds our reaction to a post identified by author and publication
// timestamp. The author is told by unicast; posts of our own are only
// updated locally.
func (m *Manager) Like(author string, postTimestamp int64) error {
	return m.react(author, postTimestamp, wire.ActionLike)
}

// Unlike withdraws a reaction.
func (m *Manager) Unlike(author string, postTimestamp int64) error {
	return m.react(author, postTimestamp, wire.ActionUnlike)
}

func (m *Manager) react(author string, postTimestamp int64, action string) error {
	m.mu.Lock()
	entry := m.findPost(author, postTimestamp)
	if entry == nil {
		m.mu.Unlock()
		return ErrUnknownPost
	}
	if entry.expired(time.Now().Unix()) {
		m.mu.Unlock()
		return ErrPostExpired
	}
	m.mu.Unlock()

	if author != m.cfg.SelfID {
		like := &wire.Like{
			From:          m.cfg.SelfID,
			To:            author,
			PostTimestamp: postTimestamp,
			Action:        action,
			Timestamp:     time.Now().Unix(),
			MessageID:     wire.NewMessageID(),
			Token:         m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeBroadcast, limits.DefaultTokenTTL),
		}
		addr, err := m.cfg.Peers.ResolveAddr(author, m.cfg.Port)
		if err != nil {
			return err
		}
		if err := m.cfg.Transport.Send(like.Encode(), addr); err != nil {
			return fmt.Errorf("send %s: %w", action, err)
		}
	}

	m.mu.Lock()
	if entry := m.findPost(author, postTimestamp); entry != nil {
		if action == wire.ActionLike {
			entry.likes[m.cfg.SelfID] = struct{}{}
		} else {
			delete(entry.likes, m.cfg.SelfID)
		}
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "react",
		"author":         author,
		"post_timestamp": postTimestamp,
		"action":         action,
	}).Info("Reaction sent")
	return nil
}

// findPost locates a feed entry by author and timestamp. Caller holds the
// lock.
func (m *Manager) findPost(author string, timestamp int64) *feedEntry {
	for _, entry := range m.feed {
		if entry.author == author && entry.timestamp == timestamp {
			return entry
		}
	}
	return nil
}

// Follow subscribes to a peer's posts. The relationship is recorded only
// after the notice goes out.
func (m *Manager) Follow(target string) error {
	return m.setFollow(target, true)
}

// Unfollow cancels a subscription.
func (m *Manager) Unfollow(target string) error {
	return m.setFollow(target, false)
}

func (m *Manager) setFollow(target string, follow bool) error {
	if target == m.cfg.SelfID {
		return ErrSelfTarget
	}

	now := time.Now().Unix()
	messageID := wire.NewMessageID()
	token := m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeFollow, limits.DefaultTokenTTL)

	var frame []byte
	if follow {
		frame = (&wire.Follow{From: m.cfg.SelfID, To: target, Timestamp: now, MessageID: messageID, Token: token}).Encode()
	} else {
		frame = (&wire.Unfollow{From: m.cfg.SelfID, To: target, Timestamp: now, MessageID: messageID, Token: token}).Encode()
	}

	addr, err := m.cfg.Peers.ResolveAddr(target, m.cfg.Port)
	if err != nil {
		return err
	}
	if err := m.cfg.Transport.Send(frame, addr); err != nil {
		return fmt.Errorf("send follow notice: %w", err)
	}

	m.mu.Lock()
	if follow {
		m.following[target] = struct{}{}
	} else {
		delete(m.following, target)
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "setFollow",
		"target":   target,
		"follow":   follow,
	}).Info("Follow state changed")
	return nil
}

// SendDM delivers a direct message over the reliable substrate and records
// it in the conversation history on acknowledgement.
func (m *Manager) SendDM(ctx context.Context, to, content string) (ChatMessage, error) {
	if content == "" {
		return ChatMessage{}, ErrEmptyContent
	}
	if to == m.cfg.SelfID {
		return ChatMessage{}, ErrSelfTarget
	}

	dm := &wire.DM{
		From:      m.cfg.SelfID,
		To:        to,
		Content:   content,
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeChat, limits.ChatTokenTTL),
	}
	addr, err := m.cfg.Peers.ResolveAddr(to, m.cfg.Port)
	if err != nil {
		return ChatMessage{}, err
	}
	if err := m.cfg.Sender.SendReliable(ctx, dm.Encode(), addr, dm.MessageID); err != nil {
		return ChatMessage{}, err
	}

	m.mu.Lock()
	msg := ChatMessage{
		From:        m.cfg.SelfID,
		To:          to,
		DisplayName: m.displayName,
		Content:     content,
		Timestamp:   dm.Timestamp,
		MessageID:   dm.MessageID,
	}
	m.history[to] = append(m.history[to], msg)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "SendDM",
		"to":         to,
		"message_id": dm.MessageID,
	}).Info("Direct message delivered")
	return msg, nil
}

// Feed returns the live posts in arrival order, expired entries filtered.
// With onlyFollowed set, the listing is restricted to followed authors and
// our own posts.
func (m *Manager) Feed(onlyFollowed bool) []FeedPost {
	now := time.Now().Unix()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FeedPost, 0, len(m.feed))
	for _, entry := range m.feed {
		if entry.expired(now) {
			continue
		}
		if onlyFollowed && entry.author != m.cfg.SelfID {
			if _, ok := m.following[entry.author]; !ok {
				continue
			}
		}
		out = append(out, entry.snapshot())
	}
	return out
}

// History returns the conversation with one correspondent, oldest first.
func (m *Manager) History(correspondent string) []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history[correspondent]
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Conversations maps each correspondent to the number of messages
// exchanged.
func (m *Manager) Conversations() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.history))
	for id, msgs := range m.history {
		out[id] = len(msgs)
	}
	return out
}

// Following returns the identities we follow, sorted.
func (m *Manager) Following() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.following)
}

// Followers returns the identities following us, sorted.
func (m *Manager) Followers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.followers)
}

// IsFollowing reports whether we follow the given identity.
func (m *Manager) IsFollowing(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.following[identity]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HandlePost records a received post in the feed. Posts already past
// their validity window are dropped.
func (m *Manager) HandlePost(msg wire.Message, src *net.UDPAddr) error {
	post, ok := msg.(*wire.Post)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	if post.Timestamp+post.TTL < time.Now().Unix() {
		return fmt.Errorf("%w: posted %d, ttl %d", ErrPostExpired, post.Timestamp, post.TTL)
	}

	m.mu.Lock()
	entry := &feedEntry{
		author:      post.UserID,
		displayName: m.peerDisplayName(post.UserID),
		content:     post.Content,
		timestamp:   post.Timestamp,
		ttl:         post.TTL,
		messageID:   post.MessageID,
		likes:       make(map[string]struct{}),
	}
	m.feed = append(m.feed, entry)
	snap := entry.snapshot()
	cb := m.onPost
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "HandlePost",
		"author":     post.UserID,
		"message_id": post.MessageID,
	}).Info("Post received")

	if cb != nil {
		cb(snap)
	}
	return nil
}

// HandleLike applies a reaction to the addressed post.
func (m *Manager) HandleLike(msg wire.Message, src *net.UDPAddr) error {
	like, ok := msg.(*wire.Like)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	if like.Action != wire.ActionLike && like.Action != wire.ActionUnlike {
		return fmt.Errorf("unknown like action %q", like.Action)
	}

	m.mu.Lock()
	entry := m.findPost(like.To, like.PostTimestamp)
	if entry == nil {
		m.mu.Unlock()
		return ErrUnknownPost
	}
	if like.Action == wire.ActionLike {
		entry.likes[like.From] = struct{}{}
	} else {
		delete(entry.likes, like.From)
	}
	snap := entry.snapshot()
	cb := m.onLike
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "HandleLike",
		"from":           like.From,
		"action":         like.Action,
		"post_timestamp": like.PostTimestamp,
	}).Info("Reaction received")

	if cb != nil {
		cb(like.From, like.Action, snap)
	}
	return nil
}

// HandleDM records a received direct message under its sender.
func (m *Manager) HandleDM(msg wire.Message, src *net.UDPAddr) error {
	dm, ok := msg.(*wire.DM)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	recorded := ChatMessage{
		From:        dm.From,
		To:          dm.To,
		DisplayName: m.peerDisplayName(dm.From),
		Content:     dm.Content,
		Timestamp:   dm.Timestamp,
		MessageID:   dm.MessageID,
	}
	m.history[dm.From] = append(m.history[dm.From], recorded)
	cb := m.onDM
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "HandleDM",
		"from":       dm.From,
		"message_id": dm.MessageID,
	}).Info("Direct message received")

	if cb != nil {
		cb(recorded)
	}
	return nil
}

// HandleFollow records a new follower.
func (m *Manager) HandleFollow(msg wire.Message, src *net.UDPAddr) error {
	follow, ok := msg.(*wire.Follow)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	m.followers[follow.From] = struct{}{}
	cb := m.onFollow
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleFollow",
		"from":     follow.From,
	}).Info("Gained a follower")

	if cb != nil {
		cb(follow.From, true)
	}
	return nil
}

// HandleUnfollow removes a follower.
func (m *Manager) HandleUnfollow(msg wire.Message, src *net.UDPAddr) error {
	unfollow, ok := msg.(*wire.Unfollow)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	delete(m.followers, unfollow.From)
	cb := m.onFollow
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleUnfollow",
		"from":     unfollow.From,
	}).Info("Lost a follower")

	if cb != nil {
		cb(unfollow.From, false)
	}
	return nil
}

// peerDisplayName resolves the best known name for an identity. Caller
// holds the lock; the directory has its own.
func (m *Manager) peerDisplayName(identity string) string {
	if p, ok := m.cfg.Peers.Get(identity); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return wire.Username(identity)
}
