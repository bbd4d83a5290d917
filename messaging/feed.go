package messaging

import (
	"errors"
	"sort"
)

// ErrUnknownPost indicates a like or unlike aimed at a post the feed does
// not hold.
var ErrUnknownPost = errors.New("no such post in the feed")

// ErrPostExpired indicates a post whose validity window had already lapsed
// on arrival.
var ErrPostExpired = errors.New("post expired")

// ErrEmptyContent indicates a post or message with nothing to say.
var ErrEmptyContent = errors.New("empty content")

// ErrSelfTarget indicates a social operation aimed at one's own identity.
var ErrSelfTarget = errors.New("operation targets self")

// FeedPost is a snapshot of one post in the feed. Likes holds the
// identities that currently like the post, sorted.
type FeedPost struct {
	Author      string
	DisplayName string
	Content     string
	Timestamp   int64
	TTL         int64
	MessageID   string
	Likes       []string
}

// LikedBy reports whether identity is among the post's likes.
func (p FeedPost) LikedBy(identity string) bool {
	for _, id := range p.Likes {
		if id == identity {
			return true
		}
	}
	return false
}

// ChatMessage is one direct message in a conversation. DisplayName is the
// sender's name as known when the message was recorded.
type ChatMessage struct {
	From        string
	To          string
	DisplayName string
	Content     string
	Timestamp   int64
	MessageID   string
}

// feedEntry is the mutable feed record behind FeedPost snapshots.
type feedEntry struct {
	author      string
	displayName string
	content     string
	timestamp   int64
	ttl         int64
	messageID   string
	likes       map[string]struct{}
}

func (e *feedEntry) expired(now int64) bool {
	return e.timestamp+e.ttl < now
}

func (e *feedEntry) snapshot() FeedPost {
	likes := make([]string, 0, len(e.likes))
	for id := range e.likes {
		likes = append(likes, id)
	}
	sort.Strings(likes)
	return FeedPost{
		Author:      e.author,
		DisplayName: e.displayName,
		Content:     e.content,
		Timestamp:   e.timestamp,
		TTL:         e.ttl,
		MessageID:   e.messageID,
		Likes:       likes,
	}
}
